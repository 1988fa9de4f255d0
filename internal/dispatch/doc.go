// Package dispatch streams commands to a machine controller and reconciles
// its replies with the commands that produced them.
//
// Three piles carry every command:
//
//	pending -> in-flight -> acknowledged
//
// The in-flight pile is bounded by the firmware's command buffer depth.
// Loaded programs are additional pending piles drained only while run mode is
// active.
//
// A Loop owns the transport. A helper goroutine performs the blocking
// ReadLine and forwards lines; the loop classifies each line, retires
// in-flight entries on "ok", then refills the in-flight pile from pending
// (and, when running, from programs in load order) while it has room.
//
// Loop states:
//   - AwaitingReply: waiting for the next device line
//   - Ready: the machine accepts commands
//   - Draining: moving entries from pending into in-flight and writing them
//
// Error handling:
//   - Read failure → loop ends, status ERR, notice "connection to machine was lost"
//   - "ok" with nothing in flight → desync warning, loop continues
//   - Unparseable telemetry → logged and discarded
//   - Write failure → logged; accounting is driven by replies only
//   - Notifier failure → one warning per failure streak, status UNK
//   - Panic while handling a line → recovered, logged, loop continues
//
// All pile mutation goes through Context, which serializes access with a
// single mutex. The TUI, the console and the HTTP API only enqueue and read
// snapshots.
//
// Known gap: an "Unknown command" report is matched to the first retired
// command whose text equals it, FIFO. With duplicate commands in flight the
// error may be attributed to the wrong copy.
package dispatch
