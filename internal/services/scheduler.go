package services

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mescon/Tickarr/internal/db"
	"github.com/mescon/Tickarr/internal/display"
	"github.com/mescon/Tickarr/internal/logger"
	"github.com/mescon/Tickarr/internal/widget"
)

// MaintenanceSpec is when the daily database maintenance runs.
const MaintenanceSpec = "30 3 * * *"

var (
	ErrScheduleNotFound = errors.New("schedule not found")
	ErrInvalidCron      = errors.New("invalid cron expression")
)

// Resetter re-arms a widget. *display.Board implements it.
type Resetter interface {
	Reset(widgetID string, opts widget.Options) (display.WidgetInfo, error)
}

// Schedule is a cron expression that resets a widget.
type Schedule struct {
	ID             int64      `json:"id"`
	WidgetID       string     `json:"widget_id"`
	CronExpression string     `json:"cron_expression"`
	Enabled        bool       `json:"enabled"`
	CreatedAt      time.Time  `json:"created_at"`
	NextRun        *time.Time `json:"next_run,omitempty"`
}

// SchedulerService resets widgets on cron schedules and runs the daily
// database maintenance.
type SchedulerService struct {
	repo          *db.Repository
	resetter      Resetter
	retentionDays int
	cron          *cron.Cron
	jobs          map[int64]cron.EntryID
	maintenance   cron.EntryID
	mu            sync.Mutex
}

func NewSchedulerService(repo *db.Repository, resetter Resetter, retentionDays int) *SchedulerService {
	return &SchedulerService{
		repo:          repo,
		resetter:      resetter,
		retentionDays: retentionDays,
		cron:          cron.New(),
		jobs:          make(map[int64]cron.EntryID),
	}
}

func (s *SchedulerService) Start() {
	logger.Infof("Starting Scheduler Service...")
	if err := s.LoadSchedules(); err != nil {
		logger.Errorf("Failed to load schedules: %v", err)
	}

	s.mu.Lock()
	if s.maintenance == 0 {
		id, err := s.cron.AddFunc(MaintenanceSpec, s.runMaintenance)
		if err != nil {
			logger.Errorf("Failed to schedule maintenance: %v", err)
		}
		s.maintenance = id
	}
	s.mu.Unlock()

	s.cron.Start()
}

// Stop halts the cron runner and waits for running jobs to finish.
func (s *SchedulerService) Stop() {
	<-s.cron.Stop().Done()
}

func (s *SchedulerService) runMaintenance() {
	pruned, err := s.repo.RunMaintenance(s.retentionDays)
	if err != nil {
		logger.Errorf("Database maintenance failed: %v", err)
		return
	}
	logger.Infof("Database maintenance complete (%d rows pruned)", pruned)
}

func (s *SchedulerService) LoadSchedules() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, entryID := range s.jobs {
		s.cron.Remove(entryID)
	}
	s.jobs = make(map[int64]cron.EntryID)

	rows, err := db.QueryWithRetry(s.repo.DB, "SELECT id, widget_id, cron_expression FROM reset_schedules WHERE enabled = 1")
	if err != nil {
		return err
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var id int64
		var widgetID, cronExpr string
		if err := rows.Scan(&id, &widgetID, &cronExpr); err != nil {
			logger.Errorf("Failed to scan schedule: %v", err)
			continue
		}

		if err := s.addJob(id, widgetID, cronExpr); err != nil {
			logger.Errorf("Failed to add job for schedule %d: %v", id, err)
		} else {
			count++
		}
	}
	logger.Infof("Loaded %d active reset schedules", count)
	return rows.Err()
}

// addJob must be called with s.mu held.
func (s *SchedulerService) addJob(scheduleID int64, widgetID, cronExpr string) error {
	entryID, err := s.cron.AddFunc(cronExpr, func() { s.fire(scheduleID, widgetID) })
	if err != nil {
		return err
	}
	s.jobs[scheduleID] = entryID
	return nil
}

func (s *SchedulerService) fire(scheduleID int64, widgetID string) {
	logger.Infof("Executing scheduled reset for widget %s (Schedule ID: %d)", widgetID, scheduleID)
	_, err := s.resetter.Reset(widgetID, widget.Options{})
	if err == nil {
		return
	}
	if errors.Is(err, display.ErrWidgetNotFound) {
		// The widget was removed; its schedule rows went with it.
		logger.Warnf("Dropping schedule %d: widget %s no longer exists", scheduleID, widgetID)
		s.unschedule(scheduleID)
		return
	}
	logger.Errorf("Scheduled reset failed for widget %s: %v", widgetID, err)
}

func (s *SchedulerService) unschedule(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entryID, ok := s.jobs[id]; ok {
		s.cron.Remove(entryID)
		delete(s.jobs, id)
	}
}

func validateCron(expr string) error {
	if _, err := cron.ParseStandard(expr); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCron, err)
	}
	return nil
}

// AddSchedule stores and activates a reset schedule for an existing widget.
func (s *SchedulerService) AddSchedule(widgetID, cronExpr string) (int64, error) {
	if err := validateCron(cronExpr); err != nil {
		return 0, err
	}

	res, err := db.ExecWithRetry(s.repo.DB, "INSERT INTO reset_schedules (widget_id, cron_expression, enabled) VALUES (?, ?, 1)", widgetID, cronExpr)
	if err != nil {
		return 0, fmt.Errorf("failed to save schedule for widget %s: %w", widgetID, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.addJob(id, widgetID, cronExpr); err != nil {
		return id, fmt.Errorf("saved to DB but failed to schedule: %w", err)
	}

	return id, nil
}

func (s *SchedulerService) DeleteSchedule(id int64) error {
	res, err := db.ExecWithRetry(s.repo.DB, "DELETE FROM reset_schedules WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrScheduleNotFound
	}

	s.unschedule(id)
	return nil
}

// UpdateSchedule changes the expression (when non-empty) and the enabled flag.
func (s *SchedulerService) UpdateSchedule(id int64, cronExpr string, enabled bool) error {
	if cronExpr != "" {
		if err := validateCron(cronExpr); err != nil {
			return err
		}
	}

	query := "UPDATE reset_schedules SET enabled = ?"
	args := []interface{}{enabled}
	if cronExpr != "" {
		query += ", cron_expression = ?"
		args = append(args, cronExpr)
	}
	query += " WHERE id = ?"
	args = append(args, id)

	res, err := db.ExecWithRetry(s.repo.DB, query, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrScheduleNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, ok := s.jobs[id]; ok {
		s.cron.Remove(entryID)
		delete(s.jobs, id)
	}

	if enabled {
		var widgetID, currentCron string
		err := s.repo.DB.QueryRow("SELECT widget_id, cron_expression FROM reset_schedules WHERE id = ?", id).Scan(&widgetID, &currentCron)
		if err != nil {
			return fmt.Errorf("failed to fetch updated schedule: %w", err)
		}

		if err := s.addJob(id, widgetID, currentCron); err != nil {
			logger.Errorf("Failed to reschedule job %d: %v", id, err)
		}
	}

	return nil
}

// ListSchedules returns every schedule, optionally filtered by widget.
// Active schedules carry their next run time.
func (s *SchedulerService) ListSchedules(widgetID string) ([]Schedule, error) {
	query := "SELECT id, widget_id, cron_expression, enabled, created_at FROM reset_schedules"
	var args []interface{}
	if widgetID != "" {
		query += " WHERE widget_id = ?"
		args = append(args, widgetID)
	}
	query += " ORDER BY id"

	rows, err := db.QueryWithRetry(s.repo.DB, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Schedule{}
	for rows.Next() {
		var sc Schedule
		if err := rows.Scan(&sc.ID, &sc.WidgetID, &sc.CronExpression, &sc.Enabled, &sc.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range out {
		if entryID, ok := s.jobs[out[i].ID]; ok {
			if next := s.cron.Entry(entryID).Next; !next.IsZero() {
				out[i].NextRun = &next
			}
		}
	}
	return out, nil
}
