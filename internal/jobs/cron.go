package jobs

import (
    "context"
    "fmt"
    "time"

    "github.com/robfig/cron/v3"
    "github.com/rs/zerolog"
    "github.com/sartthi/syncd/internal/config"
)

type runner interface { RunOnce(ctx context.Context) error }

type locker interface {
    TryAdvisoryLock(ctx context.Context, key int64) (bool, error)
    AdvisoryUnlock(ctx context.Context, key int64) error
}

const (
    pollLockKey     int64 = 640101
    reminderLockKey int64 = 640102
)

type Cron struct {
    cfg      config.Config
    log      zerolog.Logger
    poller   runner
    reminder runner
    locks    locker
    c        *cron.Cron
}

// NewCron schedules the tracker poller and the reminder worker. Each
// run takes an advisory lock so one replica does the work.
func NewCron(cfg config.Config, log zerolog.Logger, poller, reminder runner, locks locker) *Cron {
    loc, _ := time.LoadLocation(cfg.TZ)
    c := cron.New(cron.WithLocation(loc))
    cr := &Cron{cfg: cfg, log: log, poller: poller, reminder: reminder, locks: locks, c: c}
    _, _ = c.AddFunc(fmt.Sprintf("@every %s", cfg.PollInterval), cr.poll)
    _, _ = c.AddFunc(fmt.Sprintf("@every %s", cfg.ReminderTick), cr.tick)
    return cr
}

func (cr *Cron) Start(){ cr.c.Start() }
func (cr *Cron) Stop(){ cr.c.Stop() }

func (cr *Cron) poll(){
    ctx, cancel := context.WithTimeout(context.Background(), 4*time.Minute); defer cancel()
    cr.locked(ctx, pollLockKey, "poll", cr.poller)
}

func (cr *Cron) tick(){
    ctx, cancel := context.WithTimeout(context.Background(), time.Minute); defer cancel()
    cr.locked(ctx, reminderLockKey, "reminder", cr.reminder)
}

func (cr *Cron) locked(ctx context.Context, key int64, name string, r runner){
    ok, err := cr.locks.TryAdvisoryLock(ctx, key)
    if err != nil { cr.log.Error().Err(err).Str("job", name).Msg("cron: lock error"); return }
    if !ok { cr.log.Debug().Str("job", name).Msg("cron: already running elsewhere"); return }
    defer func(){ _ = cr.locks.AdvisoryUnlock(context.Background(), key) }()
    if err := r.RunOnce(ctx); err != nil { cr.log.Error().Err(err).Str("job", name).Msg("cron: run failed") }
}
