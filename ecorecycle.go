// Package ecorecycle is a recycling-education client.
//
// A user photographs an item, the photo is classified by a remote model, and
// the label is mapped to the bin the item belongs in. Every scan counts
// towards a short quiz whose correct answers earn bonus points, and points
// can be spent on partner rewards.
//
// Basic usage:
//
//	cfg, err := config.Load(config.GetConfigPath())
//	if err != nil {
//		log.Fatal(err)
//	}
//	app, err := ecorecycle.New(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer app.Close()
//
//	res, err := app.ScanFile(ctx, "botella.jpg")
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Printf("%s -> %s (+%d)\n", res.Mapping.DisplayName, res.Mapping.BinLabel, res.Mapping.PointValue)
//
// The package is a thin state holder over the components in pkg/:
//
//  1. detection classifies photos (backend, Ollama or llama.cpp) with a
//     simulated fallback
//  2. mapper routes labels to bins
//  3. session counts photos until a quiz can be taken
//  4. quiz generates and scores quizzes
//  5. points keeps the backend-owned balance and reward catalog in sync
package ecorecycle

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/menta2k/ecorecycle/internal/config"
	"github.com/menta2k/ecorecycle/internal/store"
	"github.com/menta2k/ecorecycle/internal/utils"
	"github.com/menta2k/ecorecycle/pkg/capture"
	"github.com/menta2k/ecorecycle/pkg/client"
	"github.com/menta2k/ecorecycle/pkg/detection"
	"github.com/menta2k/ecorecycle/pkg/ecoapi"
	"github.com/menta2k/ecorecycle/pkg/llamacpp"
	"github.com/menta2k/ecorecycle/pkg/mapper"
	"github.com/menta2k/ecorecycle/pkg/ollama"
	"github.com/menta2k/ecorecycle/pkg/points"
	"github.com/menta2k/ecorecycle/pkg/processing"
	"github.com/menta2k/ecorecycle/pkg/quiz"
	"github.com/menta2k/ecorecycle/pkg/session"
	"github.com/menta2k/ecorecycle/pkg/types"
)

// Version of the ecorecycle client
const Version = "1.0.0"

// maxNotices bounds the notification feed
const maxNotices = 50

var (
	ErrScanInProgress  = errors.New("a scan is already in progress")
	ErrNotEnoughPhotos = errors.New("not enough photos for a quiz")
	ErrNoQuiz          = errors.New("no quiz in progress")
)

// ScanResult is the outcome of one scan
type ScanResult struct {
	Photo       types.SessionPhoto
	Mapping     types.RecyclingMapping
	Simulated   bool
	Remaining   int
	CanExchange bool
}

// RewardView is a catalog entry with its state for the current balance
type RewardView struct {
	types.Reward
	Availability points.Availability
}

// App holds the state of one user session
type App struct {
	cfg      *config.Config
	logger   *zap.Logger
	now      func() time.Time
	api      *ecoapi.Client
	proc     *processing.Processor
	detector *detection.Detector
	tracker  *session.Tracker
	quizGen  *quiz.Generator
	points   *points.Client
	store    *store.Store

	scanning atomic.Bool

	mu         sync.Mutex
	activeQuiz []types.QuizQuestion
	notices    []types.Notice
	scans      []types.SessionPhoto
	pending    int
}

type options struct {
	logger     *zap.Logger
	classifier client.Classifier
	rng        *rand.Rand
	store      *store.Store
	now        func() time.Time
}

// Option configures an App
type Option func(*options)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClassifier replaces the classifier selected by the config
func WithClassifier(c client.Classifier) Option {
	return func(o *options) { o.classifier = c }
}

// WithRand sets the random source for simulated scans and quizzes
func WithRand(r *rand.Rand) Option {
	return func(o *options) { o.rng = r }
}

// WithStore uses an already opened record store instead of cfg.Store.Path
func WithStore(s *store.Store) Option {
	return func(o *options) { o.store = s }
}

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New creates an App from a validated configuration
func New(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.rng == nil {
		o.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	api, err := ecoapi.NewClient(cfg.API.BaseURL,
		ecoapi.WithTimeout(cfg.APITimeout()),
		ecoapi.WithLogger(o.logger.Named("api")))
	if err != nil {
		return nil, fmt.Errorf("backend client: %w", err)
	}

	classifier := o.classifier
	if classifier == nil {
		classifier, err = newClassifier(cfg, o.logger)
		if err != nil {
			return nil, err
		}
	}

	st := o.store
	if st == nil && cfg.Store.Path != "" {
		st, err = store.Open(cfg.Store.Path)
		if err != nil {
			return nil, err
		}
	}

	proc := processing.NewProcessor()
	proc.MaxDim = cfg.Upload.MaxDim
	proc.Quality = cfg.Upload.Quality
	proc.MinSide = cfg.Upload.MinSide

	a := &App{
		cfg:    cfg,
		logger: o.logger,
		now:    o.now,
		api:    api,
		proc:   proc,
		detector: detection.NewDetector(classifier,
			detection.WithLogger(o.logger.Named("detection")),
			detection.WithRand(rand.New(rand.NewSource(o.rng.Int63()))),
			detection.WithSimulation(cfg.Classifier.SimulateOnFailure)),
		tracker: session.NewWithThreshold(cfg.Points.RequiredPhotos),
		quizGen: quiz.New(rand.New(rand.NewSource(o.rng.Int63()))),
		points: points.New(api, cfg.User.Email,
			points.WithLogger(o.logger.Named("points")),
			points.WithClock(o.now),
			points.WithMinInterval(cfg.RefreshInterval())),
		store: st,
	}
	return a, nil
}

func newClassifier(cfg *config.Config, logger *zap.Logger) (client.Classifier, error) {
	switch cfg.Classifier.Kind {
	case config.ClassifierOllama:
		return ollama.NewClient(cfg.Classifier.URL, cfg.Classifier.Model)
	case config.ClassifierLlamaCpp:
		return llamacpp.NewClient(cfg.Classifier.URL, cfg.Classifier.Model)
	default:
		// uploads get their own, longer timeout
		url := cfg.Classifier.URL
		if url == "" {
			url = cfg.API.BaseURL
		}
		return ecoapi.NewClient(url,
			ecoapi.WithTimeout(cfg.ClassifierTimeout()),
			ecoapi.WithLogger(logger.Named("classify")))
	}
}

// Close ends the session: the quiz and photos are discarded and the record
// store is closed.
func (a *App) Close() error {
	a.tracker.Reset()
	a.mu.Lock()
	a.activeQuiz = nil
	a.mu.Unlock()
	if a.store != nil {
		return a.store.Close()
	}
	return nil
}

// Email returns the session user
func (a *App) Email() string {
	return a.points.Email()
}

// ScanFile classifies a photo from disk or an http(s) URL
func (a *App) ScanFile(ctx context.Context, path string) (*ScanResult, error) {
	if !a.scanning.CompareAndSwap(false, true) {
		return nil, ErrScanInProgress
	}
	defer a.scanning.Store(false)

	photo, err := capture.Snapshot(ctx, capture.NewFileSource(path, a.proc), a.proc)
	if err != nil {
		a.notify(types.NoticeError, "No se pudo leer la imagen")
		return nil, err
	}
	return a.scan(ctx, utils.UploadFilename(path, photo.Filename), photo.JPEG, photo.TakenAt)
}

// ScanSource captures one frame from src and classifies it. src is released
// whatever the outcome.
func (a *App) ScanSource(ctx context.Context, src capture.Source) (*ScanResult, error) {
	if !a.scanning.CompareAndSwap(false, true) {
		_ = src.Close()
		return nil, ErrScanInProgress
	}
	defer a.scanning.Store(false)

	photo, err := capture.Snapshot(ctx, src, a.proc)
	if err != nil {
		a.notify(types.NoticeError, "No se pudo capturar la foto")
		return nil, err
	}
	return a.scan(ctx, photo.Filename, photo.JPEG, photo.TakenAt)
}

// ScanImage classifies an already decoded photo
func (a *App) ScanImage(ctx context.Context, filename string, img image.Image) (*ScanResult, error) {
	if !a.scanning.CompareAndSwap(false, true) {
		return nil, ErrScanInProgress
	}
	defer a.scanning.Store(false)

	if err := a.proc.Validate(img); err != nil {
		return nil, err
	}
	data, err := a.proc.PrepareUpload(img)
	if err != nil {
		return nil, err
	}
	now := a.now()
	if filename == "" {
		filename = processing.CaptureFilename(now)
	}
	return a.scan(ctx, filename, data, now)
}

func (a *App) scan(ctx context.Context, filename string, jpeg []byte, takenAt time.Time) (*ScanResult, error) {
	out, err := a.detector.Classify(ctx, filename, jpeg)
	if err != nil {
		a.notify(types.NoticeError, "No se pudo clasificar la imagen")
		return nil, err
	}

	photo := types.SessionPhoto{
		Filename:       filename,
		Classification: *out.Result,
		Mapping:        out.Mapping,
		Timestamp:      takenAt,
	}
	a.tracker.Add(photo)
	a.mu.Lock()
	a.scans = append(a.scans, photo)
	a.mu.Unlock()

	m := out.Mapping
	switch {
	case !m.Recyclable():
		a.notify(types.NoticeInfo, fmt.Sprintf("%s: deposítalo en la caneca %s", m.DisplayName, m.BinLabel))
	case out.Result.Simulated:
		// the backend only credits scans it classified itself
		a.awardScan(ctx, m)
	default:
		a.notify(types.NoticeSuccess, fmt.Sprintf("¡Bien hecho! +%d puntos por reciclar correctamente", m.PointValue))
	}

	if _, err := a.points.RefreshBalance(ctx); err != nil && !errors.Is(err, points.ErrNoUser) {
		a.logger.Debug("balance refresh after scan failed", zap.Error(err))
	}

	if a.tracker.CanExchange() && a.tracker.Len() == a.tracker.Required() {
		a.notify(types.NoticeInfo, "¡Ya puedes hacer el quiz y ganar puntos extra!")
	}

	return &ScanResult{
		Photo:       photo,
		Mapping:     m,
		Simulated:   out.Result.Simulated,
		Remaining:   a.tracker.Remaining(),
		CanExchange: a.tracker.CanExchange(),
	}, nil
}

func (a *App) awardScan(ctx context.Context, m types.RecyclingMapping) {
	if a.points.Email() == "" {
		a.notify(types.NoticeSuccess, fmt.Sprintf("¡Bien hecho! +%d puntos por reciclar correctamente", m.PointValue))
		return
	}
	err := a.points.AwardBonus(ctx, m.PointValue, fmt.Sprintf("+%d puntos por reciclaje de %s", m.PointValue, m.DisplayName))
	a.reportAward(err, m.PointValue, fmt.Sprintf("¡Bien hecho! +%d puntos por reciclar correctamente", m.PointValue))
}

func (a *App) reportAward(err error, pts int, success string) {
	var pending *points.PendingSyncError
	switch {
	case err == nil:
		a.notify(types.NoticeSuccess, success)
	case errors.As(err, &pending):
		a.mu.Lock()
		a.pending += pending.Points
		a.mu.Unlock()
		a.notify(types.NoticeWarning, fmt.Sprintf("%d puntos pendientes de sincronizar", pts))
	default:
		a.notify(types.NoticeWarning, "No se pudieron registrar los puntos")
	}
}

// Progress reports how many photos were taken and how many the quiz needs
func (a *App) Progress() (taken, required int) {
	return a.tracker.Len(), a.tracker.Required()
}

// StartQuiz builds a quiz from the materials of the session's last photos.
// Materials recently classified by the backend complete the list when the
// session has fewer distinct materials than a quiz needs.
func (a *App) StartQuiz(ctx context.Context) ([]types.QuizQuestion, error) {
	if !a.tracker.CanExchange() {
		return nil, ErrNotEnoughPhotos
	}

	materials := a.tracker.RecentMaterials(quiz.MaxQuestions)
	if distinctMaterials(materials) < quiz.MinQuestions {
		recent, err := a.api.Classifications(ctx, quiz.MaxQuestions)
		if err != nil {
			a.logger.Debug("recent classifications unavailable", zap.Error(err))
		}
		for _, r := range recent {
			if r.RawLabel != "" {
				materials = append(materials, r.RawLabel)
			}
		}
	}

	questions := a.quizGen.Generate(materials)
	a.mu.Lock()
	a.activeQuiz = questions
	a.mu.Unlock()

	out := make([]types.QuizQuestion, len(questions))
	copy(out, questions)
	return out, nil
}

func distinctMaterials(materials []string) int {
	m := mapper.New()
	seen := map[string]struct{}{}
	for _, s := range materials {
		seen[m.Map(s).Key] = struct{}{}
	}
	return len(seen)
}

// SubmitQuiz scores the active quiz and credits the bonus. The photo cycle is
// reset whether or not the bonus reached the backend; undelivered points are
// reported as a warning notice.
func (a *App) SubmitQuiz(ctx context.Context, answers map[int]int) (types.QuizResult, error) {
	a.mu.Lock()
	questions := a.activeQuiz
	a.activeQuiz = nil
	a.mu.Unlock()
	if questions == nil {
		return types.QuizResult{}, ErrNoQuiz
	}

	result := quiz.Score(questions, answers)
	a.tracker.Reset()

	if result.BonusPoints == 0 {
		a.notify(types.NoticeInfo, "Sin puntos extra esta vez. ¡Sigue reciclando!")
		return result, nil
	}
	if a.points.Email() == "" {
		a.notify(types.NoticeSuccess, fmt.Sprintf("¡Ganaste %d puntos extra!", result.BonusPoints))
		return result, nil
	}
	err := a.points.AwardBonus(ctx, result.BonusPoints,
		fmt.Sprintf("+%d puntos por quiz (%d/%d correctas)", result.BonusPoints, result.CorrectCount, len(questions)))
	a.reportAward(err, result.BonusPoints, fmt.Sprintf("¡Ganaste %d puntos extra!", result.BonusPoints))
	return result, nil
}

// RefreshPoints refreshes the balance, subject to the refresh throttle. A
// refresh that reached the backend also resends points that are pending sync.
func (a *App) RefreshPoints(ctx context.Context) (types.PointsState, error) {
	prev := a.points.State().FetchedAt
	state, err := a.points.RefreshBalance(ctx)
	if err != nil {
		a.notify(types.NoticeWarning, "No se pudo actualizar tu saldo")
		return state, err
	}
	if state.FetchedAt.After(prev) {
		a.flushPending(ctx)
	}
	return a.points.State(), nil
}

// flushPending resends undelivered points as one award. The counter is only
// cleared once the backend accepts them.
func (a *App) flushPending(ctx context.Context) {
	a.mu.Lock()
	pts := a.pending
	a.pending = 0
	a.mu.Unlock()
	if pts == 0 {
		return
	}

	err := a.points.AwardBonus(ctx, pts, fmt.Sprintf("+%d puntos pendientes de sincronizar", pts))
	if err == nil {
		a.notify(types.NoticeSuccess, fmt.Sprintf("%d puntos pendientes sincronizados", pts))
		return
	}
	a.mu.Lock()
	a.pending += pts
	a.mu.Unlock()
	a.logger.Debug("pending points still undelivered", zap.Int("points", pts), zap.Error(err))
}

// Points returns the cached balance
func (a *App) Points() types.PointsState {
	return a.points.State()
}

// PendingPoints returns points awarded this session that did not reach the
// backend
func (a *App) PendingPoints() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pending
}

// Rewards reloads the catalog. On failure the cached catalog is returned.
func (a *App) Rewards(ctx context.Context) ([]RewardView, error) {
	if _, err := a.points.RefreshBalance(ctx); err != nil {
		a.logger.Debug("balance refresh before rewards failed", zap.Error(err))
	}
	rewards, err := a.points.LoadRewards(ctx)
	if err != nil {
		a.notify(types.NoticeWarning, "No se pudieron cargar los premios")
	}
	views := make([]RewardView, 0, len(rewards))
	for _, r := range rewards {
		views = append(views, RewardView{Reward: r, Availability: a.points.Availability(r)})
	}
	return views, err
}

// Redeem spends points on a reward from the catalog
func (a *App) Redeem(ctx context.Context, rewardID int) (types.RedemptionReceipt, error) {
	if len(a.points.Rewards()) == 0 {
		if _, err := a.points.LoadRewards(ctx); err != nil {
			a.notify(types.NoticeError, "No se pudieron cargar los premios")
			return types.RedemptionReceipt{}, err
		}
	}
	if a.points.State().FetchedAt.IsZero() {
		if _, err := a.points.ForceRefresh(ctx); err != nil {
			a.notify(types.NoticeError, "No se pudo consultar tu saldo")
			return types.RedemptionReceipt{}, err
		}
	}

	receipt, err := a.points.Redeem(ctx, rewardID)
	switch {
	case err == nil:
		a.notify(types.NoticeSuccess, receipt.Message)
	case errors.Is(err, points.ErrOutOfStock):
		a.notify(types.NoticeError, "Este premio está agotado")
	case errors.Is(err, points.ErrInsufficientPoints):
		a.notify(types.NoticeError, "No tienes puntos suficientes para este premio")
	default:
		var rejected *points.RejectedError
		if errors.As(err, &rejected) {
			a.notify(types.NoticeError, rejected.Reason)
		} else {
			a.notify(types.NoticeError, "No se pudo completar el canje")
		}
	}
	return receipt, err
}

// History returns the backend points ledger, newest first
func (a *App) History(ctx context.Context) ([]types.HistoryEntry, error) {
	entries, err := a.points.History(ctx)
	if err != nil {
		a.notify(types.NoticeWarning, "No se pudo cargar el historial")
	}
	return entries, err
}

// Scans returns this session's scans, newest first
func (a *App) Scans() []types.SessionPhoto {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]types.SessionPhoto, len(a.scans))
	for i, p := range a.scans {
		out[len(a.scans)-1-i] = p
	}
	return out
}

// Statistics summarises this session's recycled items, the ones that earned
// points, and the lifetime total
func (a *App) Statistics() types.Statistics {
	a.mu.Lock()
	pts := make([]int, 0, len(a.scans))
	for _, p := range a.scans {
		if p.Mapping.Recyclable() {
			pts = append(pts, p.Mapping.PointValue)
		}
	}
	a.mu.Unlock()
	return points.ComputeStatistics(pts, a.points.State().LifetimeTotal)
}

// Notices returns the notification feed, newest first
func (a *App) Notices() []types.Notice {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]types.Notice, len(a.notices))
	copy(out, a.notices)
	return out
}

// ClearNotices empties the notification feed
func (a *App) ClearNotices() {
	a.mu.Lock()
	a.notices = nil
	a.mu.Unlock()
}

func (a *App) notify(level types.NoticeLevel, msg string) {
	n := types.Notice{Level: level, Message: msg, Time: a.now()}
	a.mu.Lock()
	a.notices = append([]types.Notice{n}, a.notices...)
	if len(a.notices) > maxNotices {
		a.notices = a.notices[:maxNotices]
	}
	a.mu.Unlock()

	switch level {
	case types.NoticeError, types.NoticeWarning:
		a.logger.Warn(msg, zap.String("level", string(level)))
	default:
		a.logger.Debug(msg, zap.String("level", string(level)))
	}
}

// RecordFromScan fills a recycling form from a scanned photo
func RecordFromScan(p types.SessionPhoto) types.RecyclingRecord {
	return types.RecyclingRecord{
		Item:           p.Mapping.DisplayName,
		Bin:            p.Mapping.BinLabel,
		Points:         p.Mapping.PointValue,
		Instructions:   p.Mapping.Instructions,
		ImageFilename:  p.Filename,
		ImageTimestamp: p.Timestamp,
	}
}

// SubmitRecord saves a recycling form locally first, then sends it to the
// backend. A backend failure leaves the record queued for SyncRecords and is
// reported as a warning notice.
func (a *App) SubmitRecord(ctx context.Context, rec types.RecyclingRecord) (types.RecyclingRecord, error) {
	if rec.Item == "" {
		return rec, fmt.Errorf("record item is required")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = a.now().UTC()
	}

	if a.store != nil {
		saved, err := a.store.Append(ctx, rec)
		if err != nil {
			a.notify(types.NoticeError, "No se pudo guardar el registro")
			return rec, err
		}
		rec = saved
	}

	if err := a.api.SaveRecord(ctx, rec); err != nil {
		if a.store == nil {
			a.notify(types.NoticeError, "No se pudo enviar el registro")
			return rec, err
		}
		a.notify(types.NoticeWarning, "Registro guardado localmente; se enviará más tarde")
		return rec, nil
	}

	if a.store != nil {
		if err := a.store.MarkSynced(ctx, rec.ID); err != nil {
			a.logger.Warn("failed to mark record synced", zap.String("id", rec.ID), zap.Error(err))
		}
	}
	a.notify(types.NoticeSuccess, "Registro de reciclaje guardado")
	return rec, nil
}

// SyncRecords retries records that never reached the backend and returns how
// many were delivered
func (a *App) SyncRecords(ctx context.Context) (int, error) {
	if a.store == nil {
		return 0, nil
	}
	pending, err := a.store.Unsynced(ctx)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, rec := range pending {
		if err := a.api.SaveRecord(ctx, rec); err != nil {
			return sent, fmt.Errorf("sync record %s: %w", rec.ID, err)
		}
		if err := a.store.MarkSynced(ctx, rec.ID); err != nil {
			return sent, err
		}
		sent++
	}
	return sent, nil
}

// Records lists locally saved records, newest first
func (a *App) Records(ctx context.Context, limit int) ([]types.RecyclingRecord, error) {
	if a.store == nil {
		return nil, nil
	}
	return a.store.List(ctx, limit)
}

// ProbeVision asks a vision-model classifier to describe a photo
func (a *App) ProbeVision(ctx context.Context, path string) (string, error) {
	photo, err := capture.Snapshot(ctx, capture.NewFileSource(path, a.proc), a.proc)
	if err != nil {
		return "", err
	}
	return a.detector.TestVision(ctx, photo.JPEG)
}

// GetVersion returns the client version
func GetVersion() string {
	return Version
}
