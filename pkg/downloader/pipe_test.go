// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package downloader

import (
	"errors"
	"strings"
	"testing"
)

func lines(s string) []string {
	out := strings.Split(strings.TrimSuffix(s, "\n"), "\n")
	if len(out) == 1 && out[0] == "" {
		return nil
	}
	return out
}

func TestLineWriter_Write(t *testing.T) {
	t.Run("newline separated lines are forwarded", func(t *testing.T) {
		var sb strings.Builder
		lw := NewLineWriter(&sb)
		lw.Write([]byte("first\nsecond\n"))

		got := lines(sb.String())
		if len(got) != 2 || got[0] != "first" || got[1] != "second" {
			t.Errorf("Unexpected lines %v", got)
		}
	})

	t.Run("partial line is buffered until completed", func(t *testing.T) {
		var sb strings.Builder
		lw := NewLineWriter(&sb)
		lw.Write([]byte("hel"))
		lw.Write([]byte("lo\n"))

		got := lines(sb.String())
		if len(got) != 1 || got[0] != "hello" {
			t.Errorf("Unexpected lines %v", got)
		}
	})

	t.Run("carriage return burst is coalesced to the last state", func(t *testing.T) {
		var sb strings.Builder
		lw := NewLineWriter(&sb)
		lw.Write([]byte("10%\r20%\r30%"))

		got := lines(sb.String())
		if len(got) != 1 || got[0] != "30%" {
			t.Errorf("Expected single coalesced line 30%%, got %v", got)
		}
	})

	t.Run("repeated progress state is deduplicated", func(t *testing.T) {
		var sb strings.Builder
		lw := NewLineWriter(&sb)
		lw.Write([]byte("\r50%"))
		lw.Write([]byte("\r50%"))
		lw.Write([]byte("\r51%"))

		got := lines(sb.String())
		if len(got) != 2 || got[0] != "50%" || got[1] != "51%" {
			t.Errorf("Expected deduplicated progress [50%% 51%%], got %v", got)
		}
	})

	t.Run("blank segments are dropped", func(t *testing.T) {
		var sb strings.Builder
		lw := NewLineWriter(&sb)
		lw.Write([]byte("\n\n  \nreal\n"))

		got := lines(sb.String())
		if len(got) != 1 || got[0] != "real" {
			t.Errorf("Expected only the real line, got %v", got)
		}
	})
}

func TestLineWriter_Flush(t *testing.T) {
	var sb strings.Builder
	lw := NewLineWriter(&sb)
	lw.Write([]byte("trailing"))
	lw.Flush()

	got := lines(sb.String())
	if len(got) != 1 || got[0] != "trailing" {
		t.Errorf("Expected flushed partial line, got %v", got)
	}

	lw.Flush()
	if got := lines(sb.String()); len(got) != 1 {
		t.Errorf("Second flush must not re-send, got %v", got)
	}
}

func TestLineWriter_SendDone(t *testing.T) {
	var sb strings.Builder
	lw := NewLineWriter(&sb)
	lw.SendDone()
	if sb.String() != doneSentinel+"\n" {
		t.Errorf("Expected sentinel line, got %q", sb.String())
	}
}

func TestLineWriter_Close(t *testing.T) {
	var sb strings.Builder
	lw := NewLineWriter(&sb)
	lw.Close()
	lw.Send("after close")
	if n, err := lw.Write([]byte("more\n")); err != nil || n != 5 {
		t.Errorf("Write after close should swallow input, got n=%d err=%v", n, err)
	}
	if sb.String() != "" {
		t.Errorf("No output expected after Close, got %q", sb.String())
	}
}

type failingWriter struct{ wrote int }

func (f *failingWriter) Write(p []byte) (int, error) {
	f.wrote++
	return 0, errors.New("broken pipe")
}

func TestLineWriter_BrokenPipeSilencesWrites(t *testing.T) {
	fw := &failingWriter{}
	lw := NewLineWriter(fw)
	lw.Send("one")
	lw.Send("two")
	lw.Send("three")
	if fw.wrote != 1 {
		t.Errorf("Expected exactly one write attempt before going silent, got %d", fw.wrote)
	}
}

func TestForwardLines(t *testing.T) {
	t.Run("stops at the sentinel", func(t *testing.T) {
		in := "one\ntwo\n" + doneSentinel + "\nthree\n"
		var got []string
		forwardLines(strings.NewReader(in), func(line string) { got = append(got, line) })
		if len(got) != 2 || got[0] != "one" || got[1] != "two" {
			t.Errorf("Expected [one two], got %v", got)
		}
	})

	t.Run("plain EOF terminates", func(t *testing.T) {
		var got []string
		forwardLines(strings.NewReader("only\n"), func(line string) { got = append(got, line) })
		if len(got) != 1 || got[0] != "only" {
			t.Errorf("Expected [only], got %v", got)
		}
	})

	t.Run("empty stream emits nothing", func(t *testing.T) {
		forwardLines(strings.NewReader(""), func(line string) {
			t.Errorf("Unexpected line %q", line)
		})
	})
}
