package observability

import (
	"context"
	"testing"
	"time"
)

func TestNoopHooksDoNotPanic(t *testing.T) {
	ctx := context.Background()

	p := NoopPipelineHooks{}
	p.OnStageStart(ctx, "graph")
	p.OnStageComplete(ctx, "graph", time.Second, nil)

	c := NoopCacheHooks{}
	c.OnCacheHit(ctx, "scan")
	c.OnCacheMiss(ctx, "probe")
	c.OnCacheSet(ctx, "scan", 1024)

	r := NoopRelocateHooks{}
	r.OnLibraryCopied(ctx, "/opt/lib/libfoo.1.dylib", "Frameworks/libfoo.1.dylib")
	r.OnLoadCommandRewritten(ctx, "Frameworks/libbar.dylib", "/opt/lib/libfoo.1.dylib", "@loader_path/libfoo.1.dylib")
}

func TestGlobalHooksRegistry(t *testing.T) {
	Reset()

	if _, ok := Pipeline().(NoopPipelineHooks); !ok {
		t.Error("Pipeline() should return NoopPipelineHooks by default")
	}
	if _, ok := Cache().(NoopCacheHooks); !ok {
		t.Error("Cache() should return NoopCacheHooks by default")
	}
	if _, ok := Relocate().(NoopRelocateHooks); !ok {
		t.Error("Relocate() should return NoopRelocateHooks by default")
	}

	customPipeline := &testPipelineHooks{}
	SetPipelineHooks(customPipeline)
	if Pipeline() != customPipeline {
		t.Error("SetPipelineHooks should set custom hooks")
	}

	customCache := &testCacheHooks{}
	SetCacheHooks(customCache)
	if Cache() != customCache {
		t.Error("SetCacheHooks should set custom hooks")
	}

	customRelocate := &testRelocateHooks{}
	SetRelocateHooks(customRelocate)
	if Relocate() != customRelocate {
		t.Error("SetRelocateHooks should set custom hooks")
	}

	Reset()
	if _, ok := Pipeline().(NoopPipelineHooks); !ok {
		t.Error("Reset() should restore NoopPipelineHooks")
	}
	if _, ok := Relocate().(NoopRelocateHooks); !ok {
		t.Error("Reset() should restore NoopRelocateHooks")
	}
}

func TestSetNilHooksIsIgnored(t *testing.T) {
	Reset()

	custom := &testPipelineHooks{}
	SetPipelineHooks(custom)
	SetPipelineHooks(nil)

	if Pipeline() != custom {
		t.Error("SetPipelineHooks(nil) should be ignored")
	}

	Reset()
}

// Test implementations
type testPipelineHooks struct{ NoopPipelineHooks }
type testCacheHooks struct{ NoopCacheHooks }
type testRelocateHooks struct{ NoopRelocateHooks }
