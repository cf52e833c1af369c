package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"fixit/internal/core"
	"fixit/internal/geo"
	"fixit/internal/llm"
	"fixit/internal/llm/tasks"
	"fixit/pkg/schema"
)

var (
	demoLat      float64
	demoLng      float64
	demoFixtures string
	demoRecord   string
	demoDeny     bool
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Walk through a complete request in-process",
	Long: `Fill in a request step by step against an in-process form and print
every phase change, enrichment result and the final receipt.

AI enrichment uses the configured provider when an API key is present.
--fixtures replays recorded replies instead. --record saves the live
replies as fixtures for tests.`,
	RunE: runDemo,
}

func init() {
	demoCmd.Flags().Float64Var(&demoLat, "lat", 14.5995, "simulated device latitude")
	demoCmd.Flags().Float64Var(&demoLng, "lng", 120.9842, "simulated device longitude")
	demoCmd.Flags().StringVar(&demoFixtures, "fixtures", "", "replay recorded AI replies from this directory")
	demoCmd.Flags().StringVar(&demoRecord, "record", "", "record live AI replies into this directory")
	demoCmd.Flags().BoolVar(&demoDeny, "deny-location", false, "simulate a denied location permission")
}

const (
	diagnosisFixture = "diagnosis_laptop"
	addressFixture   = "address_manila"
)

func runDemo(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	enricher, rec, err := demoEnricher(ctx)
	if err != nil {
		return err
	}

	var locator geo.Locator = geo.Fixed{Coordinates: geo.Coordinates{Latitude: demoLat, Longitude: demoLng}}
	if demoDeny {
		locator = geo.Failed{Code: geo.CodePermissionDenied}
	}

	var gatewayEnricher core.Enricher
	if enricher != nil {
		gatewayEnricher = enricher
	}
	m := core.NewMachine(core.Options{
		Policy:  &policy,
		Gateway: core.NewGateway(gatewayEnricher, policy, logger),
		Locator: locator,
		Logger:  logger,
	})
	defer m.Close()

	var mu sync.Mutex
	lastPhase := m.Snapshot().Phase
	unsubscribe := m.Subscribe(func(s core.Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		if s.Phase != lastPhase {
			fmt.Printf("   ↪ phase %s → %s\n", lastPhase, s.Phase)
			lastPhase = s.Phase
		}
	})
	defer unsubscribe()

	fmt.Println("🔧 fixit intake walkthrough")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	fmt.Println("1️⃣  Device and problem")
	steps := []core.Event{
		core.SelectDevice{Device: schema.DeviceLaptop},
		core.SetField{Field: schema.FieldDeviceModel, Value: "Dell XPS 15"},
		core.SetField{Field: schema.FieldDescription, Value: "Laptop shuts down randomly when I play games, fan is very loud before it happens."},
		core.BlurDescription{},
	}
	if err := dispatchAll(m, steps...); err != nil {
		return err
	}
	snap, err := await(ctx, m, func(s core.Snapshot) bool { return !s.Diagnosis.InFlight() })
	if err != nil {
		return err
	}
	printEnrichment("suggestion", snap.Diagnosis)
	fmt.Println()

	fmt.Println("2️⃣  Photos")
	photos, err := demoPhotos(2)
	if err != nil {
		return err
	}
	if err := dispatchAll(m, core.AttachPhotos{Photos: photos}); err != nil {
		return err
	}
	snap, err = await(ctx, m, func(s core.Snapshot) bool {
		return len(s.Form.Photos) > 0 && s.Uploads.AllComplete()
	})
	if err != nil {
		return err
	}
	for _, p := range snap.Form.Photos {
		u := snap.Uploads[p.ID]
		fmt.Printf("   ✅ %s %d%% (%s)\n", p.Name, u.Progress, u.Status)
	}
	fmt.Println()

	fmt.Println("3️⃣  Priority and address")
	if err := dispatchAll(m, core.SetPriority{Priority: schema.PriorityHigh}, core.Locate{}); err != nil {
		return err
	}
	snap, err = await(ctx, m, func(s core.Snapshot) bool { return !s.Address.InFlight() })
	if err != nil {
		return err
	}
	printEnrichment("address", snap.Address)
	if snap.Form.Address == "" {
		fmt.Println("   ✍️  entering the address manually")
		if err := dispatchAll(m, core.SetField{Field: schema.FieldAddress, Value: "12 Mabini Street, Quezon City"}); err != nil {
			return err
		}
	}
	fmt.Println()

	fmt.Println("4️⃣  Contact and schedule")
	tomorrow := time.Now().AddDate(0, 0, 1)
	err = dispatchAll(m,
		core.SetField{Field: schema.FieldContactInfo, Value: "+63 917 555 0100"},
		core.SetField{Field: schema.FieldPreferredDate1, Value: tomorrow.Format("2006-01-02T15:04")},
	)
	if err != nil {
		return err
	}
	snap = m.Snapshot()
	if !snap.Valid {
		return fmt.Errorf("form still incomplete: %v", snap.Missing)
	}
	fmt.Println("   ✅ form complete")
	fmt.Println()

	fmt.Println("5️⃣  Submit")
	if err := dispatchAll(m, core.SubmitRequested{}, core.ConfirmSubmit{}); err != nil {
		return err
	}
	snap, err = await(ctx, m, func(s core.Snapshot) bool { return s.Phase != core.PhaseSubmitting })
	if err != nil {
		return err
	}
	if snap.Receipt == nil {
		return fmt.Errorf("submission failed: %s", snap.SubmitErrorMessage)
	}
	fmt.Printf("   🎫 receipt %s at %s\n", snap.Receipt.ID, snap.Receipt.ReceivedAt.Format(time.RFC3339))
	fmt.Println()

	if rec != nil {
		if err := rec.save(demoRecord); err != nil {
			return err
		}
		fmt.Printf("💾 fixtures saved to %s\n", demoRecord)
	}

	fmt.Println("✨ Walkthrough complete")
	return nil
}

// demoEnricher picks live, replayed or no enrichment. The recorder is
// non-nil only with --record.
func demoEnricher(ctx context.Context) (*recordingEnricher, *recordingEnricher, error) {
	if demoFixtures != "" {
		gen, err := replayGenerator(demoFixtures)
		if err != nil {
			return nil, nil, err
		}
		return &recordingEnricher{inner: core.NewLLMEnricher(gen)}, nil, nil
	}

	llmCfg, ok := cfg.LLMConfig()
	if !ok {
		if demoRecord != "" {
			return nil, nil, errors.New("--record needs a configured provider and API key")
		}
		fmt.Println("ℹ️  AI enrichment disabled; addresses fall back to coordinates")
		return nil, nil, nil
	}
	client, err := llm.NewClient(ctx, llmCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("llm client: %w", err)
	}

	gen := &recordingGenerator{inner: client}
	e := &recordingEnricher{inner: core.NewLLMEnricher(gen), gen: gen}
	if demoRecord == "" {
		return e, nil, nil
	}
	return e, e, nil
}

// replayGenerator answers maps-grounded requests with the address fixture
// and everything else with the diagnosis fixture.
func replayGenerator(dir string) (*llm.MockGenerator, error) {
	diagnosis, err := llm.LoadFixture(dir, diagnosisFixture)
	if err != nil {
		return nil, err
	}
	address, err := llm.LoadFixture(dir, addressFixture)
	if err != nil {
		return nil, err
	}
	return &llm.MockGenerator{
		Func: func(_ context.Context, req *llm.Request) (*llm.Response, error) {
			if req.Grounding != nil && req.Grounding.Maps {
				return address.Response(), nil
			}
			return diagnosis.Response(), nil
		},
	}, nil
}

// recordingGenerator remembers the last reply per grounding kind.
type recordingGenerator struct {
	inner llm.Generator

	mu        sync.Mutex
	diagnosis *llm.Response
	address   *llm.Response
}

func (r *recordingGenerator) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	resp, err := r.inner.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if req.Grounding != nil && req.Grounding.Maps {
		r.address = resp
	} else {
		r.diagnosis = resp
	}
	return resp, nil
}

// recordingEnricher remembers the inputs that produced the recorded replies.
type recordingEnricher struct {
	inner core.Enricher
	gen   *recordingGenerator

	mu             sync.Mutex
	diagnosisInput *tasks.DiagnosisInput
	addressInput   *tasks.AddressInput
}

func (r *recordingEnricher) Diagnose(ctx context.Context, input *tasks.DiagnosisInput) (*tasks.DiagnosisOutput, error) {
	r.mu.Lock()
	r.diagnosisInput = input
	r.mu.Unlock()
	return r.inner.Diagnose(ctx, input)
}

func (r *recordingEnricher) ReverseGeocode(ctx context.Context, input *tasks.AddressInput) (*tasks.AddressOutput, error) {
	r.mu.Lock()
	r.addressInput = input
	r.mu.Unlock()
	return r.inner.ReverseGeocode(ctx, input)
}

func (r *recordingEnricher) save(dir string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gen.mu.Lock()
	defer r.gen.mu.Unlock()

	pairs := []struct {
		name  string
		input any
		resp  *llm.Response
	}{
		{diagnosisFixture, r.diagnosisInput, r.gen.diagnosis},
		{addressFixture, r.addressInput, r.gen.address},
	}
	for _, p := range pairs {
		if p.resp == nil {
			fmt.Printf("   ⚠️  no reply recorded for %s\n", p.name)
			continue
		}
		input, err := json.Marshal(p.input)
		if err != nil {
			return fmt.Errorf("marshal %s input: %w", p.name, err)
		}
		err = llm.SaveFixture(dir, p.name, &llm.Fixture{
			Name:      p.name,
			Input:     input,
			Output:    p.resp.Text,
			Sources:   p.resp.Sources,
			Model:     p.resp.Model,
			Timestamp: time.Now().UTC(),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func dispatchAll(m *core.Machine, events ...core.Event) error {
	for _, ev := range events {
		if _, err := m.Dispatch(ev); err != nil {
			return fmt.Errorf("%s: %w", ev.Kind(), err)
		}
	}
	return nil
}

// await polls until cond holds or the policy's longest bound passes.
func await(ctx context.Context, m *core.Machine, cond func(core.Snapshot) bool) (core.Snapshot, error) {
	limit := max(policy.SubmitTimeout, policy.DiagnosisTimeout, policy.LocateTimeout) + 5*time.Second
	ctx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		snap := m.Snapshot()
		if cond(snap) {
			return snap, nil
		}
		select {
		case <-ctx.Done():
			return snap, fmt.Errorf("waiting in phase %s: %w", snap.Phase, ctx.Err())
		case <-ticker.C:
		}
	}
}

func printEnrichment(label string, e core.EnrichmentState) {
	switch e.Status {
	case core.EnrichmentSucceeded:
		fmt.Printf("   ✅ %s: %s\n", label, e.Value)
		if e.SourceURI != "" {
			fmt.Printf("      source: %s\n", e.SourceURI)
		}
		if e.Reason != "" {
			fmt.Printf("      ⚠️  %s\n", e.Reason)
		}
	case core.EnrichmentFailed:
		fmt.Printf("   ❌ %s: %s\n", label, e.Reason)
		if e.Value != "" {
			fmt.Printf("      fallback: %s\n", e.Value)
		}
	default:
		fmt.Printf("   ⏭️  %s: %s\n", label, e.Status)
	}
}

// demoPhotos renders small solid-colour PNGs.
func demoPhotos(n int) ([]schema.Photo, error) {
	photos := make([]schema.Photo, n)
	for i := range photos {
		img := image.NewRGBA(image.Rect(0, 0, 32, 32))
		fill := color.RGBA{R: uint8(60 * i), G: 120, B: 200, A: 255}
		for y := 0; y < 32; y++ {
			for x := 0; x < 32; x++ {
				img.Set(x, y, fill)
			}
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, err
		}
		photos[i] = schema.Photo{
			Name:        fmt.Sprintf("photo-%d.png", i+1),
			ContentType: "image/png",
			Size:        int64(buf.Len()),
			Data:        buf.Bytes(),
		}
	}
	return photos, nil
}
