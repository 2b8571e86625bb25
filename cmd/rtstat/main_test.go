// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package main

import (
	"bytes"
	"strings"
	"testing"

	"gviegas/rt/engine"
)

func TestFmtBytes(t *testing.T) {
	for _, c := range [...]struct {
		n    int64
		want string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1 << 10, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{1 << 20, "1.0 MiB"},
		{3 << 20, "3.0 MiB"},
	} {
		if x := fmtBytes(c.n); x != c.want {
			t.Fatalf("fmtBytes(%d):\nhave %s\nwant %s", c.n, x, c.want)
		}
	}
}

func TestBuiltinScene(t *testing.T) {
	config := engine.Config{
		StaticVertex:  1 << 12,
		DynamicVertex: 1 << 12,
		Index:         1 << 13,
		ScratchChunk:  1 << 16,
	}
	engine.Configure(&config)
	defer func() {
		config = engine.DefaultConfig()
		engine.Configure(&config)
	}()

	sd := builtinScene()
	var reg engine.TexRegistry
	for i, m := range sd.materials {
		n := uint32(1 + 4*i)
		reg.Register(m, engine.TexSet{n, n + 1, n + 2, n + 3})
	}
	s, err := engine.NewScene(&reg)
	if err != nil {
		t.Fatalf("engine.NewScene failed:\n%#v", err)
	}
	defer s.Free()
	if err := uploadStatic(s, sd); err != nil {
		t.Fatalf("uploadStatic failed:\n%#v", err)
	}
	frame := 0
	for i := range 3 {
		frame = i % engine.MaxFrame
		if err := runFrame(s, sd, i, frame, engine.MaskWorldAll, true); err != nil {
			t.Fatalf("runFrame failed:\n%#v", err)
		}
	}

	st := s.Stats(frame)
	if len(st.BLAS) != 6 || st.Instances != 6 {
		t.Fatalf("builtin scene stats:\nhave %d, %d\nwant 6, 6", len(st.BLAS), st.Instances)
	}
	if st.InstMask != [8]int{4, 0, 1, 0, 0, 1} {
		t.Fatalf("builtin scene masks:\nhave %v\nwant [4 0 1 0 0 1 0 0]", st.InstMask)
	}
	if st.Lights != 3 || !st.DistantLight {
		t.Fatalf("builtin scene lights:\nhave %d, %t\nwant 3, true", st.Lights, st.DistantLight)
	}

	var buf bytes.Buffer
	report(&buf, sd, st)
	for _, want := range []string{"BLAS", "world 2 (sky)", "refract", "Total"} {
		if !strings.Contains(buf.String(), want) {
			t.Fatalf("report output lacks %q:\n%s", want, buf.String())
		}
	}
}
