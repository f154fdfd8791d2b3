package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/telemedicine-scheduling/internal/app"
	"github.com/hackgods/telemedicine-scheduling/internal/appointment"
	"github.com/hackgods/telemedicine-scheduling/internal/auth"
	"github.com/hackgods/telemedicine-scheduling/internal/availability"
	"github.com/hackgods/telemedicine-scheduling/internal/config"
)

type SimConfig struct {
	APIBaseURL string
	Duration   time.Duration
	Workers    int
	Patients   int
	HotSlots   int
	Department string
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[min2(len(latencies)*50/100, len(latencies)-1)]
	p95 = latencies[min2(len(latencies)*95/100, len(latencies)-1)]
	return avg, min, max, p50, p95
}

func min2(a, b int) int {
	if a < b {
		return a
	}
	return b
}

type Metrics struct {
	Submit  OperationMetrics
	Approve OperationMetrics
	Pay     OperationMetrics
}

type Simulator struct {
	config     SimConfig
	client     *http.Client
	logger     zerolog.Logger
	tokens     *auth.TokenManager
	staffToken string
	patients   []auth.Actor
	slots      []availability.Slot
	fee        int64
	currency   string
	required   int
	metrics    Metrics
}

func main() {
	base, err := config.Load()
	if err != nil {
		bootLogger := app.NewLogger("dev", "simulate")
		bootLogger.Fatal().Err(err).Msg("config load error")
	}
	logger := app.NewLogger(base.Env, "simulate")

	cfg := SimConfig{
		APIBaseURL: getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:   getDuration("SIM_DURATION", 30*time.Second),
		Workers:    getInt("SIM_WORKERS", 10),
		Patients:   getInt("SIM_PATIENTS", 200),
		HotSlots:   getInt("SIM_HOT_SLOTS", 6),
		Department: getEnv("SIM_DEPARTMENT", base.Departments[0].Code),
	}
	if cfg.Workers <= 0 || cfg.Duration <= 0 || cfg.Patients <= 0 {
		logger.Fatal().Msg("SIM_WORKERS, SIM_DURATION and SIM_PATIENTS must be > 0")
	}
	if cfg.HotSlots < base.RequiredCandidates {
		logger.Fatal().Int("required", base.RequiredCandidates).Msg("SIM_HOT_SLOTS must cover the required candidates")
	}

	sim := &Simulator{
		config: cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
		tokens: auth.NewTokenManager(base.AuthSecret, base.AuthIssuer, base.AuthTokenTTL),
	}
	if err := sim.prepare(base); err != nil {
		logger.Fatal().Err(err).Msg("prepare simulation")
	}

	logger.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Int("hot_slots", len(sim.slots)).
		Str("department", cfg.Department).
		Msg("starting simulation")

	sim.Run()
	doubles, err := sim.audit()
	if err != nil {
		logger.Error().Err(err).Msg("audit failed")
	}
	sim.PrintReport(doubles)
	if doubles > 0 {
		os.Exit(2)
	}
}

// prepare mints tokens, resolves the department fee and picks the contended
// slots: the first open half-hours on upcoming days.
func (s *Simulator) prepare(base config.Config) error {
	dept, ok := findDepartment(base.Departments, s.config.Department)
	if !ok {
		return fmt.Errorf("unknown department %q", s.config.Department)
	}
	s.fee, s.currency = dept.Fee, dept.Currency
	s.required = base.RequiredCandidates

	var err error
	s.staffToken, err = s.tokens.Issue(auth.Staff(uuid.New()))
	if err != nil {
		return err
	}
	for i := 0; i < s.config.Patients; i++ {
		s.patients = append(s.patients, auth.Patient(uuid.New()))
	}

	day := availability.DateOf(time.Now().In(base.Location))
	for offset := 1; offset <= 30 && len(s.slots) < s.config.HotSlots; offset++ {
		d := day.AddDays(offset)
		var win availability.Window
		if err := s.getJSON("/availability/window?date="+d.String(), s.staffToken, &win); err != nil {
			return err
		}
		for t := win.Start; win.Contains(t) && len(s.slots) < s.config.HotSlots; t += 30 {
			s.slots = append(s.slots, availability.Slot{Date: d, Time: t})
		}
	}
	if len(s.slots) < base.RequiredCandidates {
		return fmt.Errorf("found only %d open slots in the next 30 days", len(s.slots))
	}
	return nil
}

func findDepartment(list []config.Department, code string) (config.Department, bool) {
	for _, d := range list {
		if d.Code == code {
			return d, true
		}
	}
	return config.Department{}, false
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.logger.Info().Msg("simulation complete")
}

// worker books, approves and pays in a loop. Every flow competes for the
// same small slot set, so most payments should end in a conflict.
func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for ctx.Err() == nil {
		patient := s.patients[rng.Intn(len(s.patients))]
		token, err := s.tokens.Issue(patient)
		if err != nil {
			s.logger.Error().Err(err).Msg("issue patient token")
			return
		}

		candidates := make([]availability.Slot, 0, s.required)
		for _, i := range rng.Perm(len(s.slots))[:s.required] {
			candidates = append(candidates, s.slots[i])
		}

		var appt appointment.Appointment
		ok := s.call(ctx, &s.metrics.Submit, http.MethodPost, "/appointments", token, map[string]any{
			"department": s.config.Department,
			"candidates": candidates,
		}, http.StatusCreated, &appt)
		if !ok {
			continue
		}

		chosen := candidates[rng.Intn(len(candidates))]
		base := "/appointments/" + appt.ID.String()
		if !s.call(ctx, &s.metrics.Approve, http.MethodPost, base+"/approve", s.staffToken, map[string]any{"chosen": chosen}, http.StatusOK, nil) {
			continue
		}

		s.call(ctx, &s.metrics.Pay, http.MethodPost, base+"/payments", token, map[string]any{
			"provider":        "simulator",
			"external_txn_id": "SIM-" + uuid.NewString(),
			"amount":          s.fee,
			"currency":        s.currency,
		}, http.StatusCreated, nil)
	}
}

func (s *Simulator) call(ctx context.Context, om *OperationMetrics, method, path, token string, body any, want int, out any) bool {
	payload, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		if ctx.Err() == nil {
			om.Record(latency, false, false)
		}
		return false
	}
	defer resp.Body.Close()

	success := resp.StatusCode == want
	om.Record(latency, success, resp.StatusCode == http.StatusConflict)
	if success && out != nil {
		data, _ := io.ReadAll(resp.Body)
		if err := json.Unmarshal(data, out); err != nil {
			return false
		}
	}
	return success
}

func (s *Simulator) getJSON(path, token string, out any) error {
	req, err := http.NewRequest(http.MethodGet, s.config.APIBaseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// audit counts department slots holding more than one confirmed appointment.
func (s *Simulator) audit() (int, error) {
	bySlot := make(map[string]int)
	for offset := 0; ; offset += 100 {
		var page struct {
			Items []appointment.Appointment `json:"items"`
		}
		path := fmt.Sprintf("/appointments?status=confirmed&department=%s&limit=100&offset=%d", s.config.Department, offset)
		if err := s.getJSON(path, s.staffToken, &page); err != nil {
			return 0, err
		}
		for _, a := range page.Items {
			if a.Chosen != nil {
				bySlot[a.Chosen.String()]++
			}
		}
		if len(page.Items) < 100 {
			break
		}
	}

	doubles := 0
	for slot, n := range bySlot {
		if n > 1 {
			s.logger.Error().Str("slot", slot).Int("confirmed", n).Msg("double booking detected")
			doubles++
		}
	}
	return doubles, nil
}

func (s *Simulator) PrintReport(doubles int) {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Contended slots: %d\n", len(s.slots))
	fmt.Println()

	printOperationReport("Submit", &s.metrics.Submit)
	printOperationReport("Approve", &s.metrics.Approve)
	printOperationReport("Pay", &s.metrics.Pay)

	fmt.Printf("Double-booked slots: %d\n", doubles)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
