package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/funko-orders/internal/app"
	"github.com/vladislavdragonenkov/funko-orders/internal/domain"
	"github.com/vladislavdragonenkov/funko-orders/internal/service/orders"
)

const (
	codeOK       = "ok"
	codeIncident = "incident"
	codeConflict = "version_conflict"
	codeTimeout  = "timeout"
	codeInternal = "internal"
)

type config struct {
	total       int
	totalSet    bool
	duration    time.Duration
	concurrency int
	timeout     time.Duration
	products    int
	stock       int
	quantity    int
	price       decimal.Decimal
	removeRate  int
	userTag     string
	outputPath  string
}

// orderPlacer описывает операции сервиса заказов, которые нагружает утилита.
type orderPlacer interface {
	Create(ctx context.Context, intent domain.OrderIntent) (domain.Order, error)
	Remove(ctx context.Context, id string) error
}

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type operationReport struct {
	Calls     int64            `json:"calls"`
	Success   int64            `json:"success"`
	Rejected  int64            `json:"rejected"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	Codes     map[string]int64 `json:"codes"`
	LatencyMs latencySummary   `json:"latency_ms"`
}

type stockMismatch struct {
	ProductID string `json:"product_id"`
	Expected  int    `json:"expected"`
	Actual    int    `json:"actual"`
}

type report struct {
	StartedAt         time.Time                  `json:"started_at"`
	DurationSeconds   float64                    `json:"duration_seconds"`
	TotalScenarios    int64                      `json:"total_scenarios"`
	SuccessScenarios  int64                      `json:"success_scenarios"`
	FailedScenarios   int64                      `json:"failed_scenarios"`
	ErrorRate         float64                    `json:"error_rate"`
	RPS               float64                    `json:"rps"`
	ScenarioLatencyMs latencySummary             `json:"scenario_latency_ms"`
	Operations        map[string]operationReport `json:"operations"`
	LiveOrders        int                        `json:"live_orders"`
	StockMismatches   []stockMismatch            `json:"stock_mismatches,omitempty"`
}

type operationStats struct {
	calls     int64
	success   int64
	rejected  int64
	failed    int64
	codes     map[string]int64
	latencies []float64
}

type collector struct {
	mu         sync.Mutex
	operations map[string]*operationStats
}

func newCollector() *collector {
	return &collector{
		operations: make(map[string]*operationStats),
	}
}

func (c *collector) record(operation string, latency time.Duration, code string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, ok := c.operations[operation]
	if !ok {
		stats = &operationStats{
			codes: make(map[string]int64),
		}
		c.operations[operation] = stats
	}

	stats.calls++
	switch {
	case code == codeOK:
		stats.success++
	case isFailureCode(code):
		stats.failed++
	default:
		stats.rejected++
	}
	stats.codes[code]++
	stats.latencies = append(stats.latencies, float64(latency.Microseconds())/1000.0)
}

func (c *collector) buildReport(startedAt time.Time, duration time.Duration) report {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: duration.Seconds(),
		Operations:      make(map[string]operationReport, len(c.operations)),
	}

	if scenarioStats := c.operations["scenario"]; scenarioStats != nil {
		result.TotalScenarios = scenarioStats.calls
		result.SuccessScenarios = scenarioStats.success + scenarioStats.rejected
		result.FailedScenarios = scenarioStats.failed
		result.ErrorRate = ratio(scenarioStats.failed, scenarioStats.calls)
		result.ScenarioLatencyMs = buildLatencySummary(scenarioStats.latencies)
	}
	if duration > 0 {
		result.RPS = float64(result.TotalScenarios) / duration.Seconds()
	}

	for name, stats := range c.operations {
		codesCopy := make(map[string]int64, len(stats.codes))
		for code, count := range stats.codes {
			codesCopy[code] = count
		}
		result.Operations[name] = operationReport{
			Calls:     stats.calls,
			Success:   stats.success,
			Rejected:  stats.rejected,
			Failed:    stats.failed,
			ErrorRate: ratio(stats.failed, stats.calls),
			Codes:     codesCopy,
			LatencyMs: buildLatencySummary(stats.latencies),
		}
	}

	return result
}

// ledger хранит позиции живых заказов, созданных прогоном.
type ledger struct {
	mu     sync.Mutex
	orders map[string][]domain.OrderLine
}

func newLedger() *ledger {
	return &ledger{orders: make(map[string][]domain.OrderLine)}
}

func (l *ledger) add(order domain.Order) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.orders[order.ID] = domain.CloneLines(order.Lines)
}

func (l *ledger) remove(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.orders, id)
}

func (l *ledger) live() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.orders)
}

// reserved возвращает суммарное количество единиц в живых заказах по товарам.
func (l *ledger) reserved() map[string]int {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[string]int)
	for _, lines := range l.orders {
		for _, line := range lines {
			out[line.ProductID] += line.Quantity
		}
	}
	return out
}

func parseConfig(args []string) (config, error) {
	var cfg config
	var durationValue string
	var timeoutValue string
	var priceValue string

	fs := flag.NewFlagSet("stockload", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.IntVar(&cfg.total, "total", 400, "total scenarios to execute in count mode; in duration mode only used when explicitly set")
	fs.StringVar(&durationValue, "duration", "0s", "optional time-based run duration (e.g. 30s, 5m)")
	fs.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent workers")
	fs.StringVar(&timeoutValue, "timeout", "5s", "per-operation timeout")
	fs.IntVar(&cfg.products, "products", 4, "number of catalog products to seed")
	fs.IntVar(&cfg.stock, "stock", 100, "initial stock per seeded product")
	fs.IntVar(&cfg.quantity, "quantity", 1, "quantity per order line")
	fs.StringVar(&priceValue, "price", "19.99", "seeded product price")
	fs.IntVar(&cfg.removeRate, "remove-rate", 50, "remove probability in percent after create (0..100)")
	fs.StringVar(&cfg.userTag, "user-tag", "load", "user id prefix")
	fs.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	duration, err := time.ParseDuration(strings.TrimSpace(durationValue))
	if err != nil {
		return cfg, fmt.Errorf("parse duration: %w", err)
	}
	cfg.duration = duration

	timeout, err := time.ParseDuration(strings.TrimSpace(timeoutValue))
	if err != nil {
		return cfg, fmt.Errorf("parse timeout: %w", err)
	}
	cfg.timeout = timeout

	price, err := decimal.NewFromString(strings.TrimSpace(priceValue))
	if err != nil {
		return cfg, fmt.Errorf("parse price: %w", err)
	}
	cfg.price = price

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	if cfg.duration < 0 {
		return cfg, errors.New("duration must be >= 0")
	}
	if cfg.duration == 0 && cfg.total <= 0 {
		return cfg, errors.New("total must be > 0 when duration is not set")
	}
	if cfg.duration > 0 && cfg.totalSet && cfg.total <= 0 {
		return cfg, errors.New("total must be > 0 when explicitly set with duration")
	}
	if cfg.concurrency <= 0 {
		return cfg, errors.New("concurrency must be > 0")
	}
	if cfg.timeout <= 0 {
		return cfg, errors.New("timeout must be > 0")
	}
	if cfg.products <= 0 {
		return cfg, errors.New("products must be > 0")
	}
	if cfg.stock < 0 {
		return cfg, errors.New("stock must be >= 0")
	}
	if cfg.quantity <= 0 {
		return cfg, errors.New("quantity must be > 0")
	}
	if cfg.price.IsNegative() {
		return cfg, errors.New("price must be >= 0")
	}
	if cfg.removeRate < 0 || cfg.removeRate > 100 {
		return cfg, errors.New("remove-rate must be between 0 and 100")
	}
	if strings.TrimSpace(cfg.userTag) == "" {
		return cfg, errors.New("user-tag is required")
	}

	return cfg, nil
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	cfg, err := parseConfig(args)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "invalid config: %v\n", err)
		return 2
	}

	_ = godotenv.Load()
	appCfg, warnings := app.ConfigFromEnv(os.LookupEnv)
	for _, warning := range warnings {
		log.Warn(warning)
	}

	ctx := context.Background()
	rt, err := app.Build(ctx, appCfg)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "failed to build runtime: %v\n", err)
		return 1
	}
	defer rt.Close()

	productIDs, err := seedCatalog(ctx, rt.Catalog, cfg)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "failed to seed catalog: %v\n", err)
		return 1
	}

	result := runLoad(ctx, rt.Orders, cfg, productIDs)
	mismatches, err := verifyStock(ctx, rt.Catalog, cfg.stock, productIDs, result.ledger)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "failed to verify stock: %v\n", err)
		return 1
	}
	result.report.StockMismatches = mismatches

	printReport(stdout, result.report, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result.report); err != nil {
			_, _ = fmt.Fprintf(stderr, "failed to write report: %v\n", err)
			return 1
		}
	}

	if result.report.FailedScenarios > 0 || len(mismatches) > 0 {
		return 1
	}
	return 0
}

// seedCatalog создаёт товары прогона с уникальными ID и возвращает их.
func seedCatalog(ctx context.Context, catalog domain.ProductRepository, cfg config) ([]string, error) {
	runID := fmt.Sprintf("%d", time.Now().UnixNano())
	ids := make([]string, 0, cfg.products)
	for i := 0; i < cfg.products; i++ {
		id := fmt.Sprintf("LOAD-%s-%03d", runID, i)
		err := catalog.CreateProduct(ctx, domain.Product{
			ID:    id,
			Name:  fmt.Sprintf("Load Funko %d", i),
			Price: cfg.price,
			Stock: cfg.stock,
		})
		if err != nil {
			return nil, fmt.Errorf("create product %s: %w", id, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

type loadResult struct {
	report report
	ledger *ledger
}

func runLoad(ctx context.Context, svc orderPlacer, cfg config, productIDs []string) loadResult {
	startedAt := time.Now()
	col := newCollector()
	book := newLedger()

	jobs := make(chan int, cfg.concurrency*2)
	var wg sync.WaitGroup
	for workerID := 0; workerID < cfg.concurrency; workerID++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				runScenario(ctx, svc, cfg, productIDs, id, col, book)
			}
		}()
	}

	dispatchJobs(jobs, cfg)
	wg.Wait()

	result := col.buildReport(startedAt, time.Since(startedAt))
	result.LiveOrders = book.live()
	return loadResult{report: result, ledger: book}
}

func dispatchJobs(jobs chan<- int, cfg config) {
	defer close(jobs)

	if cfg.duration <= 0 {
		for i := 0; i < cfg.total; i++ {
			jobs <- i
		}
		return
	}

	timer := time.NewTimer(cfg.duration)
	defer timer.Stop()

	for i := 0; ; i++ {
		if cfg.totalSet && i >= cfg.total {
			return
		}

		select {
		case <-timer.C:
			return
		case jobs <- i:
		}
	}
}

// runScenario создаёт заказ на один товар и, в зависимости от remove-rate, удаляет его.
// Отказы валидации (например, нехватка остатка) считаются ожидаемым исходом.
func runScenario(
	ctx context.Context,
	svc orderPlacer,
	cfg config,
	productIDs []string,
	index int,
	col *collector,
	book *ledger,
) {
	scenarioStart := time.Now()
	scenarioCode := codeOK
	defer func() {
		col.record("scenario", time.Since(scenarioStart), scenarioCode)
	}()

	intent := domain.OrderIntent{
		UserID: fmt.Sprintf("%s-%d", cfg.userTag, index%cfg.concurrency),
		Client: domain.Client{
			FullName: "Load Runner",
			Email:    "load@example.com",
		},
		Lines: []domain.OrderLine{{
			ProductID:    productIDs[index%len(productIDs)],
			ProductPrice: cfg.price,
			Quantity:     cfg.quantity,
		}},
	}

	order, code := callCreate(ctx, svc, cfg.timeout, intent, col)
	if code != codeOK {
		scenarioCode = code
		return
	}
	book.add(order)

	if !shouldRemove(index, cfg.removeRate) {
		return
	}
	if code := callRemove(ctx, svc, cfg.timeout, order.ID, col); code != codeOK {
		scenarioCode = code
		return
	}
	book.remove(order.ID)
}

func callCreate(
	ctx context.Context,
	svc orderPlacer,
	timeout time.Duration,
	intent domain.OrderIntent,
	col *collector,
) (domain.Order, string) {
	start := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	order, err := svc.Create(callCtx, intent)
	code := resultCode(err)
	col.record("Create", time.Since(start), code)
	return order, code
}

func callRemove(
	ctx context.Context,
	svc orderPlacer,
	timeout time.Duration,
	id string,
	col *collector,
) string {
	start := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	code := resultCode(svc.Remove(callCtx, id))
	col.record("Remove", time.Since(start), code)
	return code
}

// resultCode сводит ошибку сервиса к коду отчёта.
func resultCode(err error) string {
	switch {
	case err == nil:
		return codeOK
	case domain.IsIncident(err) && domain.IsVersionConflict(err):
		return codeConflict
	case domain.IsIncident(err):
		return codeIncident
	case errors.Is(err, context.DeadlineExceeded):
		return codeTimeout
	case domain.IsClientError(err):
		return orders.RejectionReason(err)
	default:
		return codeInternal
	}
}

func isFailureCode(code string) bool {
	switch code {
	case codeIncident, codeConflict, codeTimeout, codeInternal:
		return true
	default:
		return false
	}
}

func shouldRemove(index, removeRate int) bool {
	if removeRate <= 0 {
		return false
	}
	if removeRate >= 100 {
		return true
	}
	return index%100 < removeRate
}

// verifyStock сверяет остатки каталога с позициями живых заказов:
// stock == initial - sum(quantity в живых заказах).
func verifyStock(
	ctx context.Context,
	catalog domain.Catalog,
	initial int,
	productIDs []string,
	book *ledger,
) ([]stockMismatch, error) {
	reserved := book.reserved()
	var mismatches []stockMismatch
	for _, id := range productIDs {
		product, err := catalog.GetProduct(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load product %s: %w", id, err)
		}
		expected := initial - reserved[id]
		if product.Stock != expected {
			mismatches = append(mismatches, stockMismatch{
				ProductID: id,
				Expected:  expected,
				Actual:    product.Stock,
			})
		}
	}
	return mismatches, nil
}

func writeJSONReport(path string, result report) error {
	cleanPath := filepath.Clean(path)
	if cleanPath == "." || cleanPath == string(filepath.Separator) {
		return errors.New("output path must point to a file")
	}
	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return fmt.Errorf("output path must be inside current directory: %s", path)
	}

	// #nosec G304 -- path is an explicit CLI output parameter for local load reports.
	file, err := os.Create(cleanPath)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func printReport(out io.Writer, result report, cfg config) {
	_, _ = fmt.Fprintln(out, "Stock load summary")
	_, _ = fmt.Fprintf(out, "run=%s total=%d success=%d failed=%d error_rate=%.4f live_orders=%d\n",
		runTarget(cfg),
		result.TotalScenarios,
		result.SuccessScenarios,
		result.FailedScenarios,
		result.ErrorRate,
		result.LiveOrders,
	)
	_, _ = fmt.Fprintf(out, "duration=%.2fs rps=%.2f\n", result.DurationSeconds, result.RPS)
	_, _ = fmt.Fprintf(out, "scenario latency ms: min=%.2f avg=%.2f p50=%.2f p95=%.2f p99=%.2f max=%.2f\n",
		result.ScenarioLatencyMs.Min,
		result.ScenarioLatencyMs.Avg,
		result.ScenarioLatencyMs.P50,
		result.ScenarioLatencyMs.P95,
		result.ScenarioLatencyMs.P99,
		result.ScenarioLatencyMs.Max,
	)

	names := make([]string, 0, len(result.Operations))
	for name := range result.Operations {
		if name == "scenario" {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		stats := result.Operations[name]
		_, _ = fmt.Fprintf(out,
			"%s: calls=%d success=%d rejected=%d failed=%d error_rate=%.4f p95=%.2fms\n",
			name,
			stats.Calls,
			stats.Success,
			stats.Rejected,
			stats.Failed,
			stats.ErrorRate,
			stats.LatencyMs.P95,
		)
	}

	if len(result.StockMismatches) == 0 {
		_, _ = fmt.Fprintln(out, "stock check: ok")
		return
	}
	for _, m := range result.StockMismatches {
		_, _ = fmt.Fprintf(out, "stock check: product=%s expected=%d actual=%d\n", m.ProductID, m.Expected, m.Actual)
	}
}

func runTarget(cfg config) string {
	if cfg.duration <= 0 {
		return fmt.Sprintf("count:%d", cfg.total)
	}
	if cfg.totalSet {
		return fmt.Sprintf("duration:%s,max-total:%d", cfg.duration, cfg.total)
	}
	return fmt.Sprintf("duration:%s", cfg.duration)
}

func buildLatencySummary(values []float64) latencySummary {
	if len(values) == 0 {
		return latencySummary{}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	var sum float64
	for _, value := range sorted {
		sum += value
	}

	return latencySummary{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: sum / float64(len(sorted)),
		P50: percentile(sorted, 50),
		P95: percentile(sorted, 95),
		P99: percentile(sorted, 99),
	}
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := (p / 100.0) * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}

	weight := rank - float64(lower)
	return sorted[lower] + (sorted[upper]-sorted[lower])*weight
}

func ratio(failed, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(failed) / float64(total)
}
