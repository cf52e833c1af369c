package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"fixit/internal/backend"
	"fixit/internal/geo"
	"fixit/internal/llm/tasks"
	"fixit/internal/preview"
	"fixit/internal/upload"
	"fixit/pkg/schema"
)

// Options configures a Machine. Zero values select in-process defaults.
type Options struct {
	// Policy defaults to DefaultPolicy.
	Policy *Policy

	// Gateway performs enrichment. Defaults to a gateway without an enricher.
	Gateway *Gateway

	// Submitter receives confirmed requests. Defaults to a simulated backend.
	Submitter backend.Submitter

	// Transport moves photos. Defaults to the upload simulator.
	Transport upload.Transport

	// Locator is used by Locate events that carry none.
	Locator geo.Locator

	// Previews holds preview bytes. Defaults to a private store.
	Previews      *preview.Store
	PreviewPrefix string

	Logger Logger
}

// Machine owns one intake form. Every mutation, user-driven or asynchronous,
// is an Event applied by Dispatch under a single lock.
type Machine struct {
	policy    Policy
	gateway   *Gateway
	submitter backend.Submitter
	locator   geo.Locator
	tracker   *upload.Tracker
	previews  *preview.Set
	logger    Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	state   FormState
	version uint64
	closed  bool
	journal *journal

	// attempts maps photo id to the tracker attempt whose updates are current.
	attempts map[string]int

	diagnosisToken  uint64
	diagnosisCancel context.CancelFunc
	lastDiagnosed   string

	addressToken  uint64
	addressCancel context.CancelFunc

	submitToken  uint64
	submitCancel context.CancelFunc

	statusSeq   uint64
	statusTimer *time.Timer

	previewGen uint64

	listeners    map[int]func(Snapshot)
	nextListener int
}

// NewMachine creates a machine in Editing at step 1 with an empty form.
func NewMachine(opts Options) *Machine {
	if opts.Logger == nil {
		opts.Logger = NopLogger()
	}
	policy := DefaultPolicy()
	if opts.Policy != nil {
		policy = *opts.Policy
	}
	if opts.Gateway == nil {
		opts.Gateway = NewGateway(nil, policy, opts.Logger)
	}
	if opts.Submitter == nil {
		opts.Submitter = backend.NewSimulated(policy.SubmitDelay)
	}
	if opts.Locator == nil {
		opts.Locator = geo.Failed{Code: geo.CodeUnavailable}
	}
	if opts.Previews == nil {
		opts.Previews = preview.NewStore()
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Machine{
		policy:    policy,
		gateway:   opts.Gateway,
		submitter: opts.Submitter,
		locator:   opts.Locator,
		previews:  preview.NewSet(opts.Previews, opts.PreviewPrefix),
		logger:    opts.Logger,
		ctx:       ctx,
		cancel:    cancel,
		state:     NewFormState(),
		journal:   newJournal(policy.JournalSize),
		attempts:  make(map[string]int),
		listeners: make(map[int]func(Snapshot)),
	}
	m.tracker = upload.NewTracker(opts.Transport, func(u upload.Update) {
		_, _ = m.Dispatch(uploadUpdated{update: u})
	})
	return m
}

// Dispatch applies ev and returns the resulting snapshot. A rejected event
// leaves the state unchanged and returns the snapshot alongside the error.
func (m *Machine) Dispatch(ev Event) (Snapshot, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return Snapshot{}, ErrClosed
	}

	err := m.apply(ev)
	if !isProgressTick(ev) {
		m.journal.record(ev.Kind(), m.state.Phase, time.Now().UTC(), err)
	}
	if err == nil {
		m.version++
	} else {
		m.logger.Debug("event rejected", "event", ev.Kind(), "phase", string(m.state.Phase), "error", err.Error())
	}
	snap := newSnapshot(m.state, m.version, time.Now().UTC())

	var notify []func(Snapshot)
	if err == nil {
		notify = make([]func(Snapshot), 0, len(m.listeners))
		for _, fn := range m.listeners {
			notify = append(notify, fn)
		}
	}
	m.mu.Unlock()

	for _, fn := range notify {
		fn(snap)
	}
	return snap, err
}

// Snapshot returns the current state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return newSnapshot(m.state, m.version, time.Now().UTC())
}

// Journal returns the most recently applied events, oldest first.
func (m *Machine) Journal() []JournalEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.journal.list()
}

// Subscribe registers fn to receive a snapshot after every applied event.
// fn runs outside the machine lock and may call Snapshot but must not block.
func (m *Machine) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextListener
	m.nextListener++
	m.listeners[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

// Close stops every transfer, enrichment, submission and timer, releases
// preview handles and waits for background work to exit.
func (m *Machine) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.cancel()
	m.stopStatusTimer()
	m.previews.Release()
	m.listeners = make(map[int]func(Snapshot))
	m.mu.Unlock()

	// Transfer goroutines report through Dispatch, so the lock must be free here.
	m.tracker.Close()
	m.wg.Wait()
}

func (m *Machine) apply(ev Event) error {
	if isUserEvent(ev) && !m.accepts(ev) {
		return &TransitionError{From: m.state.Phase, Event: ev.Kind()}
	}

	switch e := ev.(type) {
	case SelectDevice:
		device, err := schema.ParseDeviceType(string(e.Device))
		if err != nil {
			return &ValidationError{Field: schema.FieldDeviceType, Message: "choose one of the listed device types", Err: err}
		}
		m.state.Form.DeviceType = device
		return nil

	case SetField:
		return m.setField(e.Field, e.Value)

	case SetPriority:
		priority, err := schema.ParsePriority(string(e.Priority))
		if err != nil {
			return &ValidationError{Field: schema.FieldPriority, Message: "choose Low, Medium, High or Urgent", Err: err}
		}
		m.state.Form.Priority = priority
		return nil

	case AttachPhotos:
		return m.attachPhotos(e.Photos, e.Refused)

	case RemovePhoto:
		m.removePhoto(e.ID)
		return nil

	case RetryUpload:
		return m.retryUpload(e.ID)

	case FocusStep:
		if e.Step < schema.WizardFirstStep || e.Step > schema.WizardLastStep {
			return &ValidationError{
				Field:   "step",
				Message: fmt.Sprintf("step must be between %d and %d", schema.WizardFirstStep, schema.WizardLastStep),
			}
		}
		m.state.Step = e.Step
		return nil

	case StepForward:
		if m.state.Step < schema.WizardLastStep {
			m.state.Step++
		}
		return nil

	case StepBack:
		if m.state.Step > schema.WizardFirstStep {
			m.state.Step--
		}
		return nil

	case BlurDescription:
		return m.maybeDiagnose(false)

	case RequestDiagnosis:
		return m.maybeDiagnose(true)

	case Locate:
		locator := e.Locator
		if locator == nil {
			locator = m.locator
		}
		m.startLocate(locator)
		return nil

	case SubmitRequested:
		if m.state.Phase != PhaseEditing {
			// Already confirming or submitting.
			return nil
		}
		if missing := schema.MissingFields(m.state.Form, m.state.Uploads); len(missing) > 0 {
			return &ValidationError{Message: "form is incomplete", Fields: missing}
		}
		return m.setPhase(PhaseConfirming)

	case CancelSubmit:
		return m.setPhase(PhaseEditing)

	case ConfirmSubmit:
		if m.state.Phase == PhaseSubmitting {
			return nil
		}
		return m.startSubmit()

	case RequestReset:
		if err := m.setPhase(PhaseResetting); err != nil {
			return err
		}
		m.state.PrevStep = m.state.Step
		return nil

	case CancelReset:
		if err := m.setPhase(PhaseEditing); err != nil {
			return err
		}
		m.state.Step = m.state.PrevStep
		return nil

	case ConfirmReset, GoHome:
		if !IsValidTransition(m.state.Phase, PhaseEditing) {
			return &TransitionError{From: m.state.Phase, Event: ev.Kind()}
		}
		m.clearAll()
		return nil

	case uploadUpdated:
		m.applyUpload(e.update)
		return nil

	case diagnosisResolved:
		m.applyDiagnosis(e)
		return nil

	case addressResolved:
		m.applyAddress(e)
		return nil

	case submissionResolved:
		return m.applySubmission(e)

	case previewDecoded:
		m.applyPreview(e)
		return nil

	case statusExpired:
		if m.state.Status != nil && m.state.Status.Seq == e.seq {
			m.state.Status = nil
		}
		return nil

	default:
		return fmt.Errorf("unknown event %T", ev)
	}
}

// accepts reports whether a user event is meaningful in the current phase.
func (m *Machine) accepts(ev Event) bool {
	switch m.state.Phase {
	case PhaseEditing:
		switch ev.(type) {
		case CancelSubmit, ConfirmSubmit, CancelReset, ConfirmReset, GoHome:
			return false
		}
		return true
	case PhaseConfirming:
		switch ev.(type) {
		case SubmitRequested, CancelSubmit, ConfirmSubmit:
			return true
		}
	case PhaseSubmitting:
		switch ev.(type) {
		case SubmitRequested, ConfirmSubmit:
			return true
		}
	case PhaseSubmitted:
		_, ok := ev.(GoHome)
		return ok
	case PhaseResetting:
		switch ev.(type) {
		case CancelReset, ConfirmReset:
			return true
		}
	}
	return false
}

func (m *Machine) setPhase(to Phase) error {
	if !IsValidTransition(m.state.Phase, to) {
		return &TransitionError{From: m.state.Phase, Event: "enter " + string(to)}
	}
	m.logger.Debug("phase transition", "from", string(m.state.Phase), "to", string(to))
	m.state.Phase = to
	return nil
}

func (m *Machine) setField(field, value string) error {
	value = schema.Sanitize(value)
	form := &m.state.Form

	switch field {
	case schema.FieldDeviceModel:
		form.DeviceModel = value
	case schema.FieldDescription:
		if utf8.RuneCountInString(value) > schema.DescriptionMaxChar {
			value = string([]rune(value)[:schema.DescriptionMaxChar])
		}
		form.Description = value
		if m.policy.AutoDiagnose {
			return m.maybeDiagnose(false)
		}
	case schema.FieldAddress:
		form.Address = value
		// Typed input wins over any locate still in flight.
		m.cancelAddress()
		m.addressToken++
		m.state.Address = EnrichmentState{Status: EnrichmentNotStarted, Token: m.addressToken}
	case schema.FieldContactInfo:
		form.ContactInfo = value
		m.state.ContactError = schema.ValidateContact(value).Message
	case schema.FieldPreferredDate1:
		form.PreferredDate1 = value
	case schema.FieldPreferredDate2:
		form.PreferredDate2 = value
	default:
		return &ValidationError{Field: field, Message: "unknown field"}
	}
	return nil
}

// Photos

func (m *Machine) attachPhotos(offered []schema.Photo, refused []schema.Rejection) error {
	candidates := make([]schema.Photo, 0, len(offered))
	rejected := append([]schema.Rejection(nil), refused...)
	seen := make(map[string]bool, len(offered))
	for _, p := range offered {
		if p.ID == "" {
			id, err := schema.NewPhotoID()
			if err != nil {
				return fmt.Errorf("generate photo id: %w", err)
			}
			p.ID = id
		}
		if seen[p.ID] || m.state.Form.PhotoIndex(p.ID) >= 0 {
			rejected = append(rejected, schema.Rejection{Name: p.Name, Reason: "already attached"})
			continue
		}
		seen[p.ID] = true
		if p.Size == 0 {
			p.Size = int64(len(p.Data))
		}
		candidates = append(candidates, p)
	}

	accepted, denied := m.policy.Upload.Admit(len(m.state.Form.Photos), candidates)
	rejected = append(rejected, denied...)

	for _, p := range accepted {
		m.state.Form.Photos = append(m.state.Form.Photos, p)
		m.state.Uploads[p.ID] = schema.UploadProgress{Progress: 0, Status: schema.UploadUploading}
		m.beginUpload(p)
	}

	if m.policy.Upload.Strict {
		m.state.Rejections = rejected
		if len(rejected) > 0 {
			m.setStatus(StatusWarning, fmt.Sprintf("%d file(s) were not attached", len(rejected)))
		}
	} else if len(rejected) > 0 {
		m.logger.Debug("photos dropped", "count", len(rejected))
	}

	if len(accepted) > 0 {
		m.derivePreviews()
	}
	return nil
}

func (m *Machine) beginUpload(p schema.Photo) {
	attempt, err := m.tracker.Begin(p)
	if err != nil {
		m.logger.Error("upload not started", "photo", p.ID, "error", err.Error())
		m.state.Uploads[p.ID] = schema.UploadProgress{Status: schema.UploadError, Error: err.Error()}
		return
	}
	m.attempts[p.ID] = attempt
}

func (m *Machine) removePhoto(id string) {
	idx := m.state.Form.PhotoIndex(id)
	if idx >= 0 {
		photos := m.state.Form.Photos
		m.state.Form.Photos = append(photos[:idx:idx], photos[idx+1:]...)
	}
	delete(m.state.Uploads, id)
	delete(m.attempts, id)
	m.tracker.Remove(id)
	if idx >= 0 {
		m.derivePreviews()
	}
}

func (m *Machine) retryUpload(id string) error {
	idx := m.state.Form.PhotoIndex(id)
	if idx < 0 {
		return &ValidationError{Field: schema.FieldPhotos, Message: fmt.Sprintf("no photo %q", id)}
	}
	if m.state.Uploads[id].Status != schema.UploadError {
		return &ValidationError{Field: schema.FieldPhotos, Message: "only failed uploads can be retried"}
	}
	// A retry is a new attempt and starts from zero.
	m.state.Uploads[id] = schema.UploadProgress{Progress: 0, Status: schema.UploadUploading}
	m.beginUpload(m.state.Form.Photos[idx])
	return nil
}

func (m *Machine) applyUpload(u upload.Update) {
	if m.state.Form.PhotoIndex(u.ID) < 0 || m.attempts[u.ID] != u.Attempt {
		return
	}
	cur, ok := m.state.Uploads[u.ID]
	if !ok || cur.Status != schema.UploadUploading {
		return
	}

	next := schema.UploadProgress{Progress: max(cur.Progress, u.Progress), Status: u.Status}
	switch u.Status {
	case schema.UploadComplete:
		next.Progress = schema.ProgressComplete
	case schema.UploadError:
		next.Progress = cur.Progress
		if u.Err != nil {
			next.Error = u.Err.Error()
		}
		m.logger.Warn("upload failed", "photo", u.ID, "attempt", u.Attempt, "error", next.Error)
	}
	if next.Progress > schema.ProgressComplete {
		next.Progress = schema.ProgressComplete
	}
	m.state.Uploads[u.ID] = next
}

// Previews

// derivePreviews replaces every preview with a fresh derivation of the photos.
// The previous generation's handles are released first.
func (m *Machine) derivePreviews() {
	m.previewGen++
	gen := m.previewGen

	previews, err := m.previews.Derive(m.state.Form.Photos)
	if err != nil {
		m.logger.Error("preview derivation failed", "error", err.Error())
		m.state.Previews = []preview.Preview{}
		return
	}
	m.state.Previews = previews

	for _, p := range m.state.Form.Photos {
		id, data := p.ID, p.Data
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			_, _ = m.Dispatch(previewDecoded{generation: gen, id: id, err: preview.Decode(data)})
		}()
	}
}

func (m *Machine) applyPreview(e previewDecoded) {
	if e.generation != m.previewGen {
		return
	}
	for i := range m.state.Previews {
		if m.state.Previews[i].ID == e.id {
			m.state.Previews[i].Loading = false
			m.state.Previews[i].Broken = e.err != nil
			return
		}
	}
}

// Enrichment

func (m *Machine) maybeDiagnose(explicit bool) error {
	description := strings.TrimSpace(m.state.Form.Description)
	if utf8.RuneCountInString(description) < schema.DiagnosisMinChars {
		if explicit {
			return &ValidationError{
				Field:   schema.FieldDescription,
				Message: fmt.Sprintf("needs at least %d characters for a suggestion", schema.DiagnosisMinChars),
			}
		}
		return nil
	}
	if !explicit && description == m.lastDiagnosed {
		return nil
	}
	m.startDiagnosis(description)
	return nil
}

func (m *Machine) startDiagnosis(description string) {
	m.cancelDiagnosis()
	m.diagnosisToken++
	token := m.diagnosisToken
	m.lastDiagnosed = description
	m.state.Diagnosis = EnrichmentState{Status: EnrichmentInFlight, Token: token}

	input := tasks.DiagnosisInput{
		Description: description,
		DeviceType:  string(m.state.Form.DeviceType),
		DeviceModel: m.state.Form.DeviceModel,
	}
	ctx, cancel := context.WithCancel(m.ctx)
	m.diagnosisCancel = cancel

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()
		out := m.gateway.Diagnose(ctx, input)
		_, _ = m.Dispatch(diagnosisResolved{token: token, outcome: out})
	}()
}

func (m *Machine) applyDiagnosis(e diagnosisResolved) {
	if !m.state.Diagnosis.InFlight() || m.state.Diagnosis.Token != e.token {
		return
	}
	m.state.Diagnosis = EnrichmentState{
		Status:    e.outcome.Status,
		Value:     e.outcome.Value,
		SourceURI: e.outcome.SourceURI,
		Reason:    e.outcome.Reason,
		Token:     e.token,
	}
	m.diagnosisCancel = nil
	if e.outcome.Status == EnrichmentFailed {
		// Let the next blur try again with the same text.
		m.lastDiagnosed = ""
	}
}

func (m *Machine) startLocate(locator geo.Locator) {
	m.cancelAddress()
	m.addressToken++
	token := m.addressToken
	m.state.Address = EnrichmentState{Status: EnrichmentInFlight, Token: token}

	ctx, cancel := context.WithCancel(m.ctx)
	m.addressCancel = cancel

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()
		out := m.gateway.ResolveAddress(ctx, locator)
		_, _ = m.Dispatch(addressResolved{token: token, outcome: out})
	}()
}

func (m *Machine) applyAddress(e addressResolved) {
	if !m.state.Address.InFlight() || m.state.Address.Token != e.token {
		return
	}
	out := e.outcome
	m.addressCancel = nil
	m.state.Address = EnrichmentState{
		Status:    out.Status,
		Value:     out.Value,
		SourceURI: out.SourceURI,
		Reason:    out.Reason,
		Token:     e.token,
	}

	if out.Status == EnrichmentSucceeded {
		m.state.Form.Address = out.Value
		if out.Reason != "" {
			m.setStatus(StatusWarning, out.Reason)
		}
		return
	}

	if m.policy.FallbackAddress != "" && strings.TrimSpace(m.state.Form.Address) == "" {
		m.state.Form.Address = m.policy.FallbackAddress
	}
	m.setStatus(StatusError, out.Reason)
}

func (m *Machine) cancelDiagnosis() {
	if m.diagnosisCancel != nil {
		m.diagnosisCancel()
		m.diagnosisCancel = nil
	}
}

func (m *Machine) cancelAddress() {
	if m.addressCancel != nil {
		m.addressCancel()
		m.addressCancel = nil
	}
}

// Submission

func (m *Machine) startSubmit() error {
	if missing := schema.MissingFields(m.state.Form, m.state.Uploads); len(missing) > 0 {
		return &ValidationError{Message: "form is incomplete", Fields: missing}
	}
	if err := m.setPhase(PhaseSubmitting); err != nil {
		return err
	}
	m.state.SubmitError = nil

	m.submitToken++
	token := m.submitToken
	sub := &backend.Submission{Form: m.state.Form.Clone(), Uploads: m.state.Uploads.Clone()}

	ctx, cancel := context.WithTimeout(m.ctx, m.policy.SubmitTimeout)
	m.submitCancel = cancel

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()
		receipt, err := m.submitter.Submit(ctx, sub)
		_, _ = m.Dispatch(submissionResolved{token: token, receipt: receipt, err: err})
	}()
	return nil
}

func (m *Machine) applySubmission(e submissionResolved) error {
	if m.state.Phase != PhaseSubmitting || e.token != m.submitToken {
		return nil
	}
	m.submitCancel = nil

	if e.err == nil && e.receipt != nil {
		m.logger.Info("request submitted", "receipt", e.receipt.ID)
		m.state.Receipt = e.receipt
		return m.setPhase(PhaseSubmitted)
	}

	err := e.err
	if err == nil {
		err = errors.New("backend returned no receipt")
	}
	m.logger.Warn("submission failed", "error", err.Error())
	m.state.SubmitError = submissionFailure(err)
	return m.setPhase(PhaseEditing)
}

func submissionFailure(err error) *SubmissionError {
	var rejected *backend.RejectedError
	switch {
	case errors.As(err, &rejected):
		fields := make([]string, 0, len(rejected.Errors))
		for _, fe := range rejected.Errors {
			fields = append(fields, fe.Field)
		}
		return &SubmissionError{Message: "some fields were rejected, please review them", Fields: fields, Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &SubmissionError{Message: "the request timed out, please try again", Err: err}
	default:
		return &SubmissionError{Message: "couldn't send the request, please try again", Err: err}
	}
}

// Status messages

func (m *Machine) setStatus(kind StatusKind, message string) {
	m.stopStatusTimer()
	m.statusSeq++
	seq := m.statusSeq
	m.state.Status = &StatusMessage{Kind: kind, Message: message, Seq: seq}

	if m.policy.StatusTTL <= 0 {
		return
	}
	m.wg.Add(1)
	m.statusTimer = time.AfterFunc(m.policy.StatusTTL, func() {
		defer m.wg.Done()
		_, _ = m.Dispatch(statusExpired{seq: seq})
	})
}

func (m *Machine) stopStatusTimer() {
	if m.statusTimer != nil && m.statusTimer.Stop() {
		m.wg.Done()
	}
	m.statusTimer = nil
}

// clearAll returns to a fresh form at step 1, abandoning all background work.
func (m *Machine) clearAll() {
	m.tracker.RemoveAll()
	m.attempts = make(map[string]int)

	m.cancelDiagnosis()
	m.cancelAddress()
	if m.submitCancel != nil {
		m.submitCancel()
		m.submitCancel = nil
	}
	m.submitToken++
	m.lastDiagnosed = ""
	m.stopStatusTimer()

	m.state = NewFormState()
	m.derivePreviews()
}

func isProgressTick(ev Event) bool {
	u, ok := ev.(uploadUpdated)
	return ok && u.update.Status == schema.UploadUploading
}
