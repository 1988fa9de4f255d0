package gcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCommandClassification(t *testing.T) {
	tests := []struct {
		name          string
		cmd           Command
		commentOnly   bool
		blank         bool
		transmittable bool
		code          string
		word          string
	}{
		{name: "plain", cmd: "G28", transmittable: true, code: "G28", word: "G28"},
		{name: "trailing comment", cmd: "G1 X10 ; move", transmittable: true, code: "G1 X10", word: "G1"},
		{name: "comment only", cmd: "; layer 2", commentOnly: true, code: "", word: ""},
		{name: "indented comment", cmd: "   ;note", commentOnly: true, word: ""},
		{name: "empty", cmd: "", blank: true},
		{name: "whitespace", cmd: " \t ", blank: true, word: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.commentOnly, tt.cmd.IsCommentOnly())
			assert.Equal(t, tt.blank, tt.cmd.IsBlank())
			assert.Equal(t, tt.transmittable, tt.cmd.Transmittable())
			if tt.code != "" {
				assert.Equal(t, tt.code, tt.cmd.Code())
			}
			assert.Equal(t, tt.word, tt.cmd.Word())
		})
	}
}

func TestCommandComment(t *testing.T) {
	comment, ok := Command("M104 S200;hotend").Comment()
	assert.True(t, ok)
	assert.Equal(t, "hotend", comment)

	_, ok = Command("M104 S200").Comment()
	assert.False(t, ok)
}
