package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/arwahdevops/logship/internal/db"
	"github.com/arwahdevops/logship/internal/shipping"
)

// AgentEngine implements shipping.JobEngine against the agent subsystem of
// one server role, reached through a db.Connector. Only the engine adapters
// know the agent's SQL surface; orchestration above stays engine-agnostic.
type AgentEngine struct {
	conn   *db.Connector
	logger *zap.Logger
}

var _ shipping.JobEngine = (*AgentEngine)(nil)

func NewAgentEngine(conn *db.Connector, logger *zap.Logger) *AgentEngine {
	return &AgentEngine{
		conn:   conn,
		logger: logger.Named("agent-engine").With(zap.String("dialect", conn.Dialect)),
	}
}

func (e *AgentEngine) unsupported(op string) error {
	return fmt.Errorf("%s: job engine is not supported for dialect %q", op, e.conn.Dialect)
}

func (e *AgentEngine) JobExists(ctx context.Context, name string) (bool, error) {
	switch e.conn.Dialect {
	case "sqlserver":
		var count int64
		err := e.conn.DB.WithContext(ctx).
			Raw(`SELECT COUNT(*) FROM msdb.dbo.sysjobs WHERE name = ?`, name).
			Scan(&count).Error
		if err != nil {
			return false, fmt.Errorf("failed to look up job %q: %w", name, err)
		}
		return count > 0, nil
	default:
		return false, e.unsupported("JobExists")
	}
}

func (e *AgentEngine) CreateOrReplaceJob(ctx context.Context, def shipping.JobDefinition) error {
	switch e.conn.Dialect {
	case "sqlserver":
		exists, err := e.JobExists(ctx, def.Name)
		if err != nil {
			return err
		}
		tx := e.conn.DB.WithContext(ctx)
		if exists {
			e.logger.Debug("Replacing existing agent job", zap.String("job", def.Name))
			if err := tx.Exec(`EXEC msdb.dbo.sp_delete_job @job_name = ?`, def.Name).Error; err != nil {
				return fmt.Errorf("failed to delete existing job %q: %w", def.Name, err)
			}
		}
		enabled := 0
		if def.Enabled {
			enabled = 1
		}
		if err := tx.Exec(`EXEC msdb.dbo.sp_add_job @job_name = ?, @enabled = ?, @description = ?`,
			def.Name, enabled, fmt.Sprintf("logship managed job (retention %d minutes)", def.RetentionMinutes)).Error; err != nil {
			return fmt.Errorf("failed to add job %q: %w", def.Name, err)
		}
		if err := tx.Exec(`EXEC msdb.dbo.sp_add_jobstep @job_name = ?, @step_name = ?, @subsystem = N'CmdExec', @command = ?`,
			def.Name, def.Name+"_step1", def.Command).Error; err != nil {
			return fmt.Errorf("failed to add job step for %q: %w", def.Name, err)
		}
		if err := tx.Exec(`EXEC msdb.dbo.sp_add_jobserver @job_name = ?`, def.Name).Error; err != nil {
			return fmt.Errorf("failed to target job %q at local server: %w", def.Name, err)
		}
		return nil
	default:
		return e.unsupported("CreateOrReplaceJob")
	}
}

func (e *AgentEngine) CreateOrReplaceSchedule(ctx context.Context, jobName string, spec shipping.ScheduleSpec) error {
	switch e.conn.Dialect {
	case "sqlserver":
		tx := e.conn.DB.WithContext(ctx)
		// Drop a same-named schedule first so repeated configuration does
		// not stack duplicates on the job.
		var count int64
		err := tx.Raw(`SELECT COUNT(*)
			FROM msdb.dbo.sysschedules s
			JOIN msdb.dbo.sysjobschedules js ON js.schedule_id = s.schedule_id
			JOIN msdb.dbo.sysjobs j ON j.job_id = js.job_id
			WHERE j.name = ? AND s.name = ?`, jobName, spec.Name).Scan(&count).Error
		if err != nil {
			return fmt.Errorf("failed to look up schedule %q: %w", spec.Name, err)
		}
		if count > 0 {
			if err := tx.Exec(`EXEC msdb.dbo.sp_delete_jobschedule @job_name = ?, @name = ?`,
				jobName, spec.Name).Error; err != nil {
				return fmt.Errorf("failed to delete existing schedule %q: %w", spec.Name, err)
			}
		}
		enabled := 0
		if spec.Enabled {
			enabled = 1
		}
		err = tx.Exec(`EXEC msdb.dbo.sp_add_jobschedule
			@job_name = ?, @name = ?, @enabled = ?,
			@freq_type = ?, @freq_interval = ?,
			@freq_subday_type = ?, @freq_subday_interval = ?,
			@freq_relative_interval = ?, @freq_recurrence_factor = ?,
			@active_start_date = ?, @active_end_date = ?,
			@active_start_time = ?, @active_end_time = ?`,
			jobName, spec.Name, enabled,
			int(spec.FrequencyType), spec.FrequencyInterval,
			int(spec.SubdayType), spec.SubdayInterval,
			spec.RelativeInterval, spec.RecurrenceFactor,
			spec.StartDate, spec.EndDate,
			spec.StartTime, spec.EndTime).Error
		if err != nil {
			return fmt.Errorf("failed to attach schedule %q to job %q: %w", spec.Name, jobName, err)
		}
		return nil
	default:
		return e.unsupported("CreateOrReplaceSchedule")
	}
}

func (e *AgentEngine) SetEnabled(ctx context.Context, jobName string, enabled bool) error {
	switch e.conn.Dialect {
	case "sqlserver":
		flag := 0
		if enabled {
			flag = 1
		}
		err := e.conn.DB.WithContext(ctx).
			Exec(`EXEC msdb.dbo.sp_update_job @job_name = ?, @enabled = ?`, jobName, flag).Error
		if err != nil {
			return fmt.Errorf("failed to set enabled=%v on job %q: %w", enabled, jobName, err)
		}
		return nil
	default:
		return e.unsupported("SetEnabled")
	}
}

func (e *AgentEngine) Start(ctx context.Context, jobName string) (shipping.RunHandle, error) {
	switch e.conn.Dialect {
	case "sqlserver":
		err := e.conn.DB.WithContext(ctx).
			Exec(`EXEC msdb.dbo.sp_start_job @job_name = ?`, jobName).Error
		if err != nil {
			return shipping.RunHandle{}, fmt.Errorf("failed to start job %q: %w", jobName, err)
		}
		return shipping.RunHandle{JobName: jobName}, nil
	default:
		return shipping.RunHandle{}, e.unsupported("Start")
	}
}

func (e *AgentEngine) PollStatus(ctx context.Context, h shipping.RunHandle) (shipping.RunState, error) {
	switch e.conn.Dialect {
	case "sqlserver":
		var running int64
		err := e.conn.DB.WithContext(ctx).Raw(`SELECT COUNT(*)
			FROM msdb.dbo.sysjobactivity ja
			JOIN msdb.dbo.sysjobs j ON j.job_id = ja.job_id
			WHERE j.name = ?
			  AND ja.run_requested_date IS NOT NULL
			  AND ja.stop_execution_date IS NULL
			  AND ja.session_id = (SELECT MAX(session_id) FROM msdb.dbo.syssessions)`,
			h.JobName).Scan(&running).Error
		if err != nil {
			return shipping.RunStateUnknown, fmt.Errorf("failed to poll job %q: %w", h.JobName, err)
		}
		if running > 0 {
			return shipping.RunStateRunning, nil
		}
		return shipping.RunStateIdle, nil
	default:
		return shipping.RunStateUnknown, e.unsupported("PollStatus")
	}
}

func (e *AgentEngine) LastOutcome(ctx context.Context, jobName string) (shipping.JobOutcome, error) {
	switch e.conn.Dialect {
	case "sqlserver":
		var status []int
		err := e.conn.DB.WithContext(ctx).Raw(`SELECT TOP 1 h.run_status
			FROM msdb.dbo.sysjobhistory h
			JOIN msdb.dbo.sysjobs j ON j.job_id = h.job_id
			WHERE j.name = ? AND h.step_id = 0
			ORDER BY h.instance_id DESC`, jobName).Scan(&status).Error
		if err != nil {
			return shipping.OutcomeUnknown, fmt.Errorf("failed to read last outcome of job %q: %w", jobName, err)
		}
		if len(status) == 0 {
			return shipping.OutcomeUnknown, nil
		}
		// run_status: 0 = failed, 1 = succeeded, 3 = cancelled.
		if status[0] == 1 {
			return shipping.OutcomeSucceeded, nil
		}
		return shipping.OutcomeFailed, nil
	default:
		return shipping.OutcomeUnknown, e.unsupported("LastOutcome")
	}
}
