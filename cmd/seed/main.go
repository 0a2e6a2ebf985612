package main

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/rs/zerolog"

	"github.com/hackgods/calendar-scheduling/internal/appointment"
	"github.com/hackgods/calendar-scheduling/internal/calendar"
	"github.com/hackgods/calendar-scheduling/internal/config"
	"github.com/hackgods/calendar-scheduling/internal/db"
	"github.com/hackgods/calendar-scheduling/internal/logging"
)

var services = []string{
	"General Practice",
	"Dermatology",
	"Cardiology",
	"Pediatrics",
	"Vaccination",
	"Document Renewal",
	"Legal Aid",
	"Social Assistance",
	"Dental Care",
	"Psychology",
}

// yearly holidays blocked on every calendar
var holidays = []struct {
	month  time.Month
	day    int
	reason string
}{
	{time.January, 1, "New Year's Day"},
	{time.April, 21, "Tiradentes"},
	{time.May, 1, "Labour Day"},
	{time.September, 7, "Independence Day"},
	{time.October, 12, "Children's Day"},
	{time.November, 2, "All Souls' Day"},
	{time.November, 15, "Republic Day"},
	{time.December, 25, "Christmas Day"},
}

var closureReasons = []string{
	"Staff training",
	"Building maintenance",
	"Community event",
	"System upgrade",
	"Team offsite",
}

func main() {
	boot := logging.Bootstrap("seed")
	cfg, err := config.Load()
	if err != nil {
		boot.Fatal().Err(err).Msg("config load error")
	}
	logger := logging.New(cfg.Env, "seed")
	logger.Info().Msg("seed starting")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 2, Timezone: cfg.Timezone})
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("apply schema")
	}

	gofakeit.Seed(time.Now().UnixNano())
	calendars := appointment.NewPgCalendarRepository(pool)
	blocked := appointment.NewPgBlockedDateRepository(pool)

	ids, err := seedCalendars(ctx, logger, calendars, getInt("SEED_CALENDARS", 20))
	if err != nil {
		logger.Fatal().Err(err).Msg("seed calendars")
	}

	if err := seedBlockedDates(ctx, logger, blocked, ids, cfg.Location()); err != nil {
		logger.Fatal().Err(err).Msg("seed blocked dates")
	}

	logger.Info().Int("calendars", len(ids)).Msg("seed complete")
}

func seedCalendars(ctx context.Context, logger zerolog.Logger, repo *appointment.PgCalendarRepository, count int) ([]int64, error) {
	logger.Info().Int("count", count).Msg("seeding calendars")

	ids := make([]int64, 0, count)
	for i := 0; i < count; i++ {
		c := randomCalendar()
		if err := repo.CreateCalendar(ctx, c); err != nil {
			return nil, err
		}
		ids = append(ids, c.ID)
	}

	logger.Info().Int("count", len(ids)).Msg("calendars seeded")
	return ids, nil
}

func randomCalendar() *calendar.Calendar {
	durations := []int{15, 20, 30, 45, 60}

	c := &calendar.Calendar{
		Title:                  services[gofakeit.Number(0, len(services)-1)] + " - " + gofakeit.LastName(),
		Status:                 calendar.StatusActive,
		SlotDuration:           durations[gofakeit.Number(0, len(durations)-1)],
		SlotInterval:           []int{0, 0, 5, 10}[gofakeit.Number(0, 3)],
		MaxAppointmentsPerSlot: gofakeit.Number(1, 4),
		AdvanceBookingMin:      gofakeit.Number(0, 24),
		AdvanceBookingMax:      gofakeit.Number(14, 90),
		AllowCancellation:      gofakeit.Number(0, 9) > 0,
		CancellationMinHours:   gofakeit.Number(0, 48),
		RequiresApproval:       gofakeit.Bool(),
		Visibility:             calendar.VisibilityPublic,
		SchedulingVisibility:   calendar.VisibilityPublic,
		RequireDocument:        gofakeit.Number(0, 3) == 0,
		WorkingHours:           randomWorkingHours(),
		SlotsPerDay:            gofakeit.Number(0, 2),
	}

	if gofakeit.Number(0, 4) == 0 {
		c.SchedulingVisibility = calendar.VisibilityPrivate
	}
	if gofakeit.Number(0, 2) == 0 {
		c.MinimumIntervalBetweenBookings = gofakeit.Number(1, 72)
	}

	return c
}

// randomWorkingHours opens weekdays with a morning window and usually an
// afternoon one. Saturday is sometimes open, Sunday is always closed.
func randomWorkingHours() calendar.WorkingHours {
	wh := calendar.WorkingHours{}

	openHour := gofakeit.Number(7, 9)
	for day := time.Monday; day <= time.Friday; day++ {
		windows := []calendar.Window{{
			Start: calendar.NewClock(openHour, 0, 0),
			End:   calendar.NewClock(12, 0, 0),
		}}
		if gofakeit.Number(0, 4) > 0 {
			windows = append(windows, calendar.Window{
				Start: calendar.NewClock(13, 30, 0),
				End:   calendar.NewClock(gofakeit.Number(16, 18), 0, 0),
			})
		}
		wh[day] = windows
	}

	if gofakeit.Bool() {
		wh[time.Saturday] = []calendar.Window{{
			Start: calendar.NewClock(8, 0, 0),
			End:   calendar.NewClock(12, 0, 0),
		}}
	}
	wh[time.Sunday] = []calendar.Window{}

	return wh
}

func seedBlockedDates(ctx context.Context, logger zerolog.Logger, repo *appointment.PgBlockedDateRepository, calendarIDs []int64, loc *time.Location) error {
	year := time.Now().In(loc).Year()

	for _, h := range holidays {
		date := time.Date(year, h.month, h.day, 0, 0, 0, 0, loc)
		if err := repo.BlockDate(ctx, nil, date, true, h.reason); err != nil {
			return err
		}
	}

	// a few one-off closures per calendar over the next two months
	start := time.Now().In(loc)
	count := 0
	for _, id := range calendarIDs {
		calendarID := id
		closures := gofakeit.Number(0, 3)
		for i := 0; i < closures; i++ {
			date := start.AddDate(0, 0, gofakeit.Number(1, 60))
			if err := repo.BlockDate(ctx, &calendarID, date, false, gofakeit.RandomString(closureReasons)); err != nil {
				return err
			}
			count++
		}
	}

	logger.Info().
		Int("holidays", len(holidays)).
		Int("closures", count).
		Msg("blocked dates seeded")
	return nil
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
