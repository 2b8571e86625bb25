// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Tabular reporting.

package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"gviegas/rt/engine"
)

// maskNames labels the instance mask bits.
var maskNames = [8]string{
	"world 0",
	"world 1 (no shadow)",
	"world 2 (sky)",
	"first person",
	"first person viewer",
	"refract",
	"bit 6",
	"bit 7",
}

func report(w io.Writer, sd *sceneData, st engine.Stats) {
	fmt.Fprintf(w, "%s: frame %d, %d geometries, %d instances, %d materials\n\n",
		sd.name, st.Frame, st.Geometries, st.Instances, len(sd.materials))
	blasTable(w, st)
	instTable(w, st)
	lightTable(w, st)
	memTable(w, st)
}

func blasTable(w io.Writer, st engine.Stats) {
	t := tablewriter.NewWriter(w)
	t.SetAutoFormatHeaders(false)
	t.SetHeader([]string{"BLAS", "Pool", "Geometries", "Triangles", "Vertices", "Indexed", "Build", "Size"})
	var tris int64
	var size int64
	for _, b := range st.BLAS {
		pool := "dynamic"
		if b.Static {
			pool = "static"
		}
		build := "fast trace"
		if b.FastBuild {
			build = "fast build"
		}
		t.Append([]string{
			b.ID.String(),
			pool,
			"1",
			strconv.Itoa(b.Triangles),
			strconv.Itoa(b.Vertices),
			strconv.FormatBool(b.Indexed),
			build,
			fmtBytes(b.Size),
		})
		tris += int64(b.Triangles)
		size += b.Size
	}
	t.SetFooter([]string{"", "", strconv.Itoa(len(st.BLAS)), strconv.FormatInt(tris, 10), "", "", "", fmtBytes(size)})
	t.Render()
	fmt.Fprintln(w)
}

func instTable(w io.Writer, st engine.Stats) {
	t := tablewriter.NewWriter(w)
	t.SetAutoFormatHeaders(false)
	t.SetHeader([]string{"Mask bit", "Instances"})
	for i, n := range st.InstMask {
		// The engine leaves the last two bits unused.
		if n == 0 && i >= 6 {
			continue
		}
		t.Append([]string{maskNames[i], strconv.Itoa(n)})
	}
	t.SetFooter([]string{"TLAS", strconv.Itoa(st.Instances)})
	t.Render()
	fmt.Fprintln(w)
}

func lightTable(w io.Writer, st engine.Stats) {
	t := tablewriter.NewWriter(w)
	t.SetAutoFormatHeaders(false)
	t.SetHeader([]string{"Lights", "Count"})
	t.Append([]string{"regular", strconv.Itoa(st.Lights)})
	dist := "0"
	if st.DistantLight {
		dist = "1"
	}
	t.Append([]string{"distant", dist})
	t.Render()
	fmt.Fprintln(w)
}

func memTable(w io.Writer, st engine.Stats) {
	t := tablewriter.NewWriter(w)
	t.SetAlignment(tablewriter.ALIGN_LEFT)
	t.SetAutoFormatHeaders(false)
	t.SetHeader([]string{"Memory", "Size"})
	t.Append([]string{"static geometry", fmtBytes(st.Mem.StaticGeom)})
	t.Append([]string{"dynamic geometry", fmtBytes(st.Mem.DynamicGeom)})
	t.Append([]string{"acceleration structures", fmtBytes(st.Mem.Accel)})
	t.Append([]string{"build scratch", fmtBytes(st.Mem.Scratch)})
	t.Append([]string{"instance upload", fmtBytes(st.Mem.Instance)})
	t.Append([]string{"records", fmtBytes(st.Mem.Record)})
	t.SetFooter([]string{"Total", fmtBytes(st.Mem.Total())})
	t.Render()
}

// fmtBytes formats a byte count with a binary unit.
func fmtBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return strconv.FormatInt(n, 10) + " B"
	}
}
