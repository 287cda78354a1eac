package main

import (
	"testing"

	"rvos/mem"
	"rvos/proc"
)

func newTestKernel() *proc.Kernel {
	alloc := mem.NewFrameAllocator(0, 8192)
	fr, ok := mem.NewFrameTracker(alloc)
	if !ok {
		panic("alloc failed")
	}
	return proc.NewKernel(alloc, fr.PPN)
}

func TestBuildProfileEmitsOneSamplePerProcess(t *testing.T) {
	k := newTestKernel()
	p := buildProfile(k)

	if len(p.SampleType) != 2 {
		t.Fatalf("sample types = %d, want 2 (user, sys)", len(p.SampleType))
	}
	if len(p.Sample) != len(k.Processes()) {
		t.Fatalf("samples = %d, want %d", len(p.Sample), len(k.Processes()))
	}
}
