package sdruntime

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func newTestPipeline(m *fakeModel) *Pipeline {
	return NewPipeline("/models/checkpoints/sd15.safetensors", LoadOptionsFor("/models/checkpoints/sd15.safetensors", DeviceCPU), m)
}

func TestPipeline_GenerateAppliesScheduler(t *testing.T) {
	model := &fakeModel{}
	p := newTestPipeline(model)

	images, err := p.Generate(context.Background(), SamplerEulerAncestral, validBatch(42, 43))
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if len(images) != 2 {
		t.Fatalf("Generate() returned %d images, want 2", len(images))
	}

	req := model.lastRequest()
	if req.Scheduler.Kind != SchedulerEulerAncestral {
		t.Errorf("backend saw scheduler %s, want euler_ancestral", req.Scheduler.Kind)
	}
	if p.Scheduler().Kind != SchedulerEulerAncestral {
		t.Errorf("pipeline scheduler = %s, want euler_ancestral", p.Scheduler().Kind)
	}
	if len(model.requests) != 1 {
		t.Errorf("backend called %d times, want one call per batch", len(model.requests))
	}
}

func TestPipeline_UnknownSamplerKeepsScheduler(t *testing.T) {
	model := &fakeModel{}
	p := newTestPipeline(model)

	if _, err := p.Generate(context.Background(), SamplerDDIM, validBatch(1)); err != nil {
		t.Fatal(err)
	}
	before := p.Scheduler()

	if _, err := p.Generate(context.Background(), ParseSampler("Foo"), validBatch(2)); err != nil {
		t.Fatalf("unknown sampler should not fail: %v", err)
	}
	if after := p.Scheduler(); after != before {
		t.Errorf("scheduler changed from %+v to %+v", before, after)
	}
	if model.lastRequest().Scheduler.Kind != SchedulerDDIM {
		t.Errorf("backend ran with %s, want ddim", model.lastRequest().Scheduler.Kind)
	}
}

func TestPipeline_GenerateErrors(t *testing.T) {
	cause := errors.New("CUDA out of memory")

	tests := []struct {
		name    string
		model   *fakeModel
		req     BatchRequest
		wantErr error
	}{
		{"backend failure", &fakeModel{err: cause}, validBatch(1), ErrGenerationFailed},
		{"image count mismatch", &fakeModel{short: true}, validBatch(1, 2), ErrGenerationFailed},
		{"invalid request", &fakeModel{}, BatchRequest{Prompt: "x"}, ErrInvalidParams},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestPipeline(tt.model).Generate(context.Background(), SamplerEuler, tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Generate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	_, err := newTestPipeline(&fakeModel{err: cause}).Generate(context.Background(), SamplerEuler, validBatch(1))
	if !errors.Is(err, cause) {
		t.Errorf("backend cause not preserved: %v", err)
	}
}

func TestPipeline_ConcurrentSamplersDoNotInterleave(t *testing.T) {
	model := &fakeModel{}
	p := newTestPipeline(model)
	samplers := []Sampler{SamplerEuler, SamplerDDIM, SamplerLMS, SamplerEulerAncestral}

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s := samplers[i%len(samplers)]
			req := validBatch(int64(s))
			if _, err := p.Generate(context.Background(), s, req); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()

	// Each request's seed encodes its sampler; the scheduler the backend saw
	// must match it.
	want := map[int64]SchedulerKind{
		int64(SamplerEuler):          SchedulerEuler,
		int64(SamplerDDIM):           SchedulerDDIM,
		int64(SamplerLMS):            SchedulerLMS,
		int64(SamplerEulerAncestral): SchedulerEulerAncestral,
	}
	for _, req := range model.requests {
		if req.Scheduler.Kind != want[req.Seeds[0]] {
			t.Errorf("request for sampler %d ran with %s", req.Seeds[0], req.Scheduler.Kind)
		}
	}
	if p.Runs() != 40 {
		t.Errorf("Runs() = %d, want 40", p.Runs())
	}
}

func TestPipeline_Close(t *testing.T) {
	model := &fakeModel{}
	p := newTestPipeline(model)

	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
	if !model.closed {
		t.Error("model not closed")
	}
	if _, err := p.Generate(context.Background(), SamplerEuler, validBatch(1)); !errors.Is(err, ErrGenerationFailed) {
		t.Errorf("Generate() after Close = %v", err)
	}
}
