package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/calendar-scheduling/internal/appointment"
	"github.com/hackgods/calendar-scheduling/internal/calendar"
	"github.com/hackgods/calendar-scheduling/internal/config"
	"github.com/hackgods/calendar-scheduling/internal/db"
	"github.com/hackgods/calendar-scheduling/internal/logging"
)

type SimConfig struct {
	APIBaseURL    string
	Duration      time.Duration
	Workers       int
	BookingRatio  float64
	CancelRatio   float64
	CalendarLimit int
	DaysAhead     int
	Location      *time.Location
	PostgresDSN   string
}

type booking struct {
	id    int64
	token string
}

// DataPool holds the public calendars under test and the bookings made so far.
type DataPool struct {
	Calendars []int64

	mu       sync.Mutex
	bookings []booking
}

func (dp *DataPool) addBooking(b booking) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.bookings = append(dp.bookings, b)
}

// takeBooking removes and returns a random booking so it is cancelled once.
func (dp *DataPool) takeBooking(rng *rand.Rand) (booking, bool) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if len(dp.bookings) == 0 {
		return booking{}, false
	}
	i := rng.Intn(len(dp.bookings))
	b := dp.bookings[i]
	dp.bookings[i] = dp.bookings[len(dp.bookings)-1]
	dp.bookings = dp.bookings[:len(dp.bookings)-1]
	return b, true
}

type opStats struct {
	total, success, rejected, failed int64

	mu        sync.Mutex
	latencies []time.Duration
}

// record counts a 2xx as success, a 4xx as an expected business rejection
// and anything else as a failure.
func (o *opStats) record(latency time.Duration, status int) {
	atomic.AddInt64(&o.total, 1)
	switch {
	case status >= 200 && status < 300:
		atomic.AddInt64(&o.success, 1)
	case status >= 400 && status < 500:
		atomic.AddInt64(&o.rejected, 1)
	default:
		atomic.AddInt64(&o.failed, 1)
	}

	o.mu.Lock()
	o.latencies = append(o.latencies, latency)
	o.mu.Unlock()
}

func (o *opStats) percentiles() (p50, p95, max time.Duration) {
	o.mu.Lock()
	sorted := make([]time.Duration, len(o.latencies))
	copy(sorted, o.latencies)
	o.mu.Unlock()

	if len(sorted) == 0 {
		return 0, 0, 0
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	at := func(pct int) time.Duration {
		i := len(sorted) * pct / 100
		if i >= len(sorted) {
			i = len(sorted) - 1
		}
		return sorted[i]
	}
	return at(50), at(95), sorted[len(sorted)-1]
}

type Simulator struct {
	config SimConfig
	pool   *DataPool
	client *http.Client
	log    zerolog.Logger

	slots   opStats
	booking opStats
	cancel  opStats

	codes sync.Map // error code -> *int64
}

func main() {
	cfg, baseCfg := loadConfig()
	logger := logging.New(baseCfg.Env, "simulate")

	if err := validateConfig(cfg); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	logger.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Float64("booking_ratio", cfg.BookingRatio).
		Float64("cancel_ratio", cfg.CancelRatio).
		Msg("simulator starting")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 4, Timezone: baseCfg.Timezone})
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("load data pool")
	}
	logger.Info().Int("calendars", len(dataPool.Calendars)).Msg("data pool loaded")

	gofakeit.Seed(time.Now().UnixNano())

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    logger,
	}

	sim.Run()
	sim.PrintReport()

	violations, err := checkCapacity(context.Background(), pgPool)
	if err != nil {
		logger.Fatal().Err(err).Msg("capacity check")
	}
	if violations > 0 {
		logger.Error().Int("slots", violations).Msg("capacity exceeded")
		os.Exit(1)
	}
	logger.Info().Msg("no slot holds more active appointments than its capacity")
}

func loadConfig() (SimConfig, config.Config) {
	baseCfg, err := config.Load()
	if err != nil {
		boot := logging.Bootstrap("simulate")
		boot.Fatal().Err(err).Msg("failed to load base config")
	}

	cfg := SimConfig{
		APIBaseURL:    getEnv("SIM_API_BASE_URL", "http://localhost:"+baseCfg.HTTPPort),
		Duration:      getDuration("SIM_DURATION", 30*time.Second),
		Workers:       getInt("SIM_WORKERS", 20),
		BookingRatio:  getFloat("SIM_BOOKING_RATIO", 0.6),
		CancelRatio:   getFloat("SIM_CANCEL_RATIO", 0.1),
		CalendarLimit: getInt("SIM_CALENDAR_LIMIT", 5),
		DaysAhead:     getInt("SIM_DAYS_AHEAD", 7),
		Location:      baseCfg.Location(),
		PostgresDSN:   baseCfg.PostgresDSN,
	}

	return cfg, baseCfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.DaysAhead <= 0 {
		return fmt.Errorf("SIM_DAYS_AHEAD must be > 0")
	}
	if cfg.BookingRatio+cfg.CancelRatio > 1 {
		return fmt.Errorf("SIM_BOOKING_RATIO + SIM_CANCEL_RATIO must be <= 1")
	}
	return nil
}

// loadDataPool picks a few active public calendars. A small set keeps many
// workers contending for the same slots.
func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	rows, err := pool.Query(ctx, `
		SELECT id
		FROM calendars
		WHERE status = 'active'
		  AND scheduling_visibility = 'public'
		  AND NOT require_document
		ORDER BY id
		LIMIT $1
	`, cfg.CalendarLimit)
	if err != nil {
		return nil, fmt.Errorf("load calendars: %w", err)
	}
	defer rows.Close()

	dataPool := &DataPool{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		dataPool.Calendars = append(dataPool.Calendars, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(dataPool.Calendars) == 0 {
		return nil, fmt.Errorf("no bookable calendars, run the seed command first")
	}
	return dataPool, nil
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
	s.log.Info().Msg("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for ctx.Err() == nil {
		r := rng.Float64()
		switch {
		case r < s.config.BookingRatio:
			s.doBooking(ctx, rng)
		case r < s.config.BookingRatio+s.config.CancelRatio:
			s.doCancel(ctx, rng)
		default:
			s.fetchSlots(ctx, s.randomCalendar(rng), s.randomDate(rng))
		}
	}
}

func (s *Simulator) randomCalendar(rng *rand.Rand) int64 {
	return s.pool.Calendars[rng.Intn(len(s.pool.Calendars))]
}

func (s *Simulator) randomDate(rng *rand.Rand) string {
	day := time.Now().In(s.config.Location).AddDate(0, 0, 1+rng.Intn(s.config.DaysAhead))
	return day.Format(calendar.DateLayout)
}

func (s *Simulator) fetchSlots(ctx context.Context, calendarID int64, date string) []appointment.AvailableSlot {
	url := fmt.Sprintf("%s/calendars/%d/slots?date=%s", s.config.APIBaseURL, calendarID, date)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() == nil {
			s.slots.record(time.Since(start), 0)
		}
		return nil
	}
	defer resp.Body.Close()
	s.slots.record(time.Since(start), resp.StatusCode)

	var slots []appointment.AvailableSlot
	if resp.StatusCode == http.StatusOK {
		_ = json.NewDecoder(resp.Body).Decode(&slots)
	}
	return slots
}

// doBooking books the earliest open slot, which is where concurrent workers
// collide the most.
func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	calendarID := s.randomCalendar(rng)
	date := s.randomDate(rng)

	slots := s.fetchSlots(ctx, calendarID, date)
	if len(slots) == 0 {
		return
	}

	body, _ := json.Marshal(map[string]any{
		"calendar_id": calendarID,
		"date":        date,
		"time":        slots[0].Time,
		"name":        gofakeit.Name(),
		"email":       strings.ToLower(gofakeit.Email()),
		"phone":       gofakeit.Phone(),
		"consent":     true,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIBaseURL+"/appointments", bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() == nil {
			s.booking.record(time.Since(start), 0)
		}
		return
	}
	defer resp.Body.Close()
	s.booking.record(time.Since(start), resp.StatusCode)

	if resp.StatusCode == http.StatusCreated {
		var res appointment.BookingResult
		if err := json.NewDecoder(resp.Body).Decode(&res); err == nil && res.Success {
			s.pool.addBooking(booking{id: res.AppointmentID, token: res.ConfirmationToken})
		}
		return
	}

	var errResp struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Error != "" {
		s.countCode(errResp.Error)
	}
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.takeBooking(rng)
	if !ok {
		return
	}

	body, _ := json.Marshal(map[string]string{"token": b.token, "reason": "simulation"})
	url := fmt.Sprintf("%s/appointments/%d/cancel", s.config.APIBaseURL, b.id)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() == nil {
			s.cancel.record(time.Since(start), 0)
		}
		return
	}
	resp.Body.Close()
	s.cancel.record(time.Since(start), resp.StatusCode)
}

func (s *Simulator) countCode(code string) {
	v, _ := s.codes.LoadOrStore(code, new(int64))
	atomic.AddInt64(v.(*int64), 1)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Calendars: %v\n\n", s.pool.Calendars)

	printOpReport("List slots", &s.slots)
	printOpReport("Book", &s.booking)
	printOpReport("Cancel", &s.cancel)

	var codes []string
	s.codes.Range(func(k, _ any) bool {
		codes = append(codes, k.(string))
		return true
	})
	if len(codes) == 0 {
		return
	}
	sort.Strings(codes)
	fmt.Println("Booking rejections:")
	for _, code := range codes {
		v, _ := s.codes.Load(code)
		fmt.Printf("  %-28s %d\n", code, atomic.LoadInt64(v.(*int64)))
	}
	fmt.Println()
}

func printOpReport(name string, o *opStats) {
	total := atomic.LoadInt64(&o.total)
	if total == 0 {
		return
	}

	pct := func(n int64) float64 { return float64(n) / float64(total) * 100 }
	success := atomic.LoadInt64(&o.success)
	rejected := atomic.LoadInt64(&o.rejected)
	failed := atomic.LoadInt64(&o.failed)
	p50, p95, max := o.percentiles()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, pct(success))
	if rejected > 0 {
		fmt.Printf("  Rejected: %d (%.1f%%)\n", rejected, pct(rejected))
	}
	if failed > 0 {
		fmt.Printf("  Failed: %d (%.1f%%)\n", failed, pct(failed))
	}
	fmt.Printf("  Latency: p50=%s p95=%s max=%s\n",
		p50.Round(time.Millisecond), p95.Round(time.Millisecond), max.Round(time.Millisecond))
	fmt.Println()
}

// checkCapacity counts slots holding more active appointments than their
// calendar allows.
func checkCapacity(ctx context.Context, pool *pgxpool.Pool) (int, error) {
	var violations int
	err := pool.QueryRow(ctx, `
		SELECT count(*)
		FROM (
			SELECT a.calendar_id, a.appointment_date, a.start_time
			FROM appointments a
			JOIN calendars c ON c.id = a.calendar_id
			WHERE a.status IN ('pending', 'confirmed')
			GROUP BY a.calendar_id, a.appointment_date, a.start_time, c.max_appointments_per_slot
			HAVING count(*) > c.max_appointments_per_slot
		) over_capacity
	`).Scan(&violations)
	return violations, err
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

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
