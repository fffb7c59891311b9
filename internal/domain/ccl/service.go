package ccl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"campusleave/internal/domain/auth"
	"campusleave/internal/domain/employee"
	"campusleave/internal/domain/ledger"
	"campusleave/internal/domain/notifications"
	"campusleave/internal/domain/requestid"
)

var (
	ErrAlreadyDecided  = errors.New("work request already decided")
	ErrNotForwarded    = errors.New("work request has not been forwarded yet")
	ErrNotPendingStage = errors.New("work request is past the first review stage")
	ErrWrongScope      = errors.New("work request is outside the approver's department")
	ErrCreditTaken     = errors.New("work credit is already spent")
	ErrFutureWorkDate  = errors.New("work date cannot be in the future")
)

type Service struct {
	DB        *pgxpool.Pool
	Store     *Store
	Employees *employee.Store
	Ledger    *ledger.Service
	IDs       *requestid.Generator
	Notifier  *notifications.Service
	Auth      *auth.Store
}

type SubmitInput struct {
	WorkDate        time.Time
	TargetAuthority string
	Reason          string
}

// SubmitWork records extra duty performed on a past date. The identifier is
// allocated and the row inserted in one transaction, with the same bounded
// retry the leave submission uses.
func (s *Service) SubmitWork(ctx context.Context, callerUserID string, in SubmitInput) (WorkRequest, error) {
	emp, err := s.Employees.GetByUserID(ctx, callerUserID)
	if err != nil {
		return WorkRequest{}, err
	}
	if in.WorkDate.After(time.Now()) {
		return WorkRequest{}, ErrFutureWorkDate
	}

	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return WorkRequest{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	work := WorkRequest{
		EmployeeID:      emp.ID,
		WorkDate:        in.WorkDate,
		TargetAuthority: in.TargetAuthority,
		Reason:          in.Reason,
		Status:          StatusPending,
	}

	year := in.WorkDate.Year()
	scope := emp.SequenceScope()

	for attempt := 1; ; attempt++ {
		nested, err := tx.Begin(ctx)
		if err != nil {
			return WorkRequest{}, err
		}
		id, err := s.IDs.Next(ctx, nested, TypeCode, year, scope)
		if err == nil {
			work.ID = id
			err = s.Store.Insert(ctx, nested, work)
		}
		if err == nil {
			if err := nested.Commit(ctx); err != nil {
				return WorkRequest{}, err
			}
			break
		}

		_ = nested.Rollback(ctx)
		if !requestid.IsUniqueViolation(err) || attempt >= requestid.MaxAttempts {
			return WorkRequest{}, err
		}
		if err := s.IDs.Resync(ctx, tx, TypeCode, year, scope, "ccl_work_requests"); err != nil {
			return WorkRequest{}, err
		}
		time.Sleep(requestid.Backoff(attempt))
	}

	reviewerID, err := s.firstReviewerUserID(ctx, emp)
	if err != nil {
		slog.Warn("first reviewer lookup failed, submitting without review notification",
			"employeeId", emp.ID, "err", err)
	}
	if err == nil && reviewerID != "" {
		title := fmt.Sprintf("Work credit request %s awaits your review", work.ID)
		body := fmt.Sprintf("%s %s reported extra duty on %s.", emp.FirstName, emp.LastName, in.WorkDate.Format("2006-01-02"))
		if err := s.Notifier.Enqueue(ctx, tx, reviewerID, notifications.TypeCCLSubmitted, title, body); err != nil {
			return WorkRequest{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return WorkRequest{}, err
	}
	return s.Store.Get(ctx, work.ID)
}

// Forward is the first review stage: the department head vouches for the
// claimed duty and passes it to the deciding authority.
func (s *Service) Forward(ctx context.Context, actor auth.Claims, workID, remark string) (WorkRequest, error) {
	return s.firstDecide(ctx, actor, workID, StatusForwarded, remark, notifications.TypeCCLForwarded,
		"Your work credit request %s was forwarded")
}

// Reject declines a work request at whichever review stage it sits in.
func (s *Service) Reject(ctx context.Context, actor auth.Claims, workID, remark string) (WorkRequest, error) {
	work, err := s.Store.Get(ctx, workID)
	if err != nil {
		return WorkRequest{}, err
	}
	// The stage handlers re-check status under a row lock, so this read only
	// routes the call.
	if work.Status == StatusForwarded {
		return s.secondDecide(ctx, actor, workID, StatusRejected, remark)
	}
	return s.firstDecide(ctx, actor, workID, StatusRejected, remark, notifications.TypeCCLRejected,
		"Your work credit request %s was rejected")
}

func (s *Service) firstDecide(ctx context.Context, actor auth.Claims, workID string, status Status, remark, ntype, titleFormat string) (WorkRequest, error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return WorkRequest{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	work, err := s.Store.GetForUpdate(ctx, tx, workID)
	if err != nil {
		return WorkRequest{}, err
	}
	if work.Status != StatusPending {
		if work.Status == StatusForwarded {
			return WorkRequest{}, ErrNotPendingStage
		}
		return WorkRequest{}, ErrAlreadyDecided
	}

	owner, err := s.Employees.Get(ctx, work.EmployeeID)
	if err != nil {
		return WorkRequest{}, err
	}
	if err := s.authorize(ctx, actor, owner); err != nil {
		return WorkRequest{}, err
	}

	if err := s.Store.MarkFirstDecision(ctx, tx, workID, status, actor.UserID, remark); err != nil {
		return WorkRequest{}, err
	}

	if status == StatusForwarded {
		deciders, err := s.Auth.UserIDsByRole(ctx, auth.RolePrincipal)
		if err != nil {
			return WorkRequest{}, err
		}
		title := fmt.Sprintf("Work credit request %s forwarded for decision", workID)
		if err := s.Notifier.EnqueueMany(ctx, tx, deciders, notifications.TypeCCLForwarded, title, remark); err != nil {
			return WorkRequest{}, err
		}
	}
	if owner.UserID != "" {
		if err := s.Notifier.Enqueue(ctx, tx, owner.UserID, ntype, fmt.Sprintf(titleFormat, workID), remark); err != nil {
			return WorkRequest{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return WorkRequest{}, err
	}
	return s.Store.Get(ctx, workID)
}

// Approve is the second stage. The credit lands on the balance in the same
// transaction as the status change, so a crash cannot approve without
// crediting or credit without approving.
func (s *Service) Approve(ctx context.Context, actor auth.Claims, workID, remark string) (WorkRequest, error) {
	return s.secondDecide(ctx, actor, workID, StatusApproved, remark)
}

func (s *Service) secondDecide(ctx context.Context, actor auth.Claims, workID string, status Status, remark string) (WorkRequest, error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return WorkRequest{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	work, err := s.Store.GetForUpdate(ctx, tx, workID)
	if err != nil {
		return WorkRequest{}, err
	}
	switch work.Status {
	case StatusForwarded:
	case StatusPending:
		return WorkRequest{}, ErrNotForwarded
	default:
		return WorkRequest{}, ErrAlreadyDecided
	}

	if err := s.Store.MarkSecondDecision(ctx, tx, workID, status, actor.UserID, remark); err != nil {
		return WorkRequest{}, err
	}

	ntype := notifications.TypeCCLRejected
	title := fmt.Sprintf("Your work credit request %s was rejected", workID)
	if status == StatusApproved {
		if err := s.Ledger.Adjust(ctx, tx, work.EmployeeID, ledger.BalanceCCL, ledger.DirectionEarned,
			CreditPerApproval, workID, "ccl_work", "extra duty approved"); err != nil {
			return WorkRequest{}, err
		}
		ntype = notifications.TypeCCLApproved
		title = fmt.Sprintf("Your work credit request %s was approved", workID)
	}

	owner, err := s.Employees.Get(ctx, work.EmployeeID)
	if err != nil {
		return WorkRequest{}, err
	}
	if owner.UserID != "" {
		if err := s.Notifier.Enqueue(ctx, tx, owner.UserID, ntype, title, remark); err != nil {
			return WorkRequest{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return WorkRequest{}, err
	}
	return s.Store.Get(ctx, workID)
}

// AvailableCreditIDs lists unspent approved work records, oldest first, up to
// limit. These are the credits a compensatory leave request can link to.
func (s *Service) AvailableCreditIDs(ctx context.Context, employeeID string, limit int) ([]string, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id FROM ccl_work_requests
    WHERE employee_id = $1 AND status = 'approved' AND NOT is_used
    ORDER BY second_decided_at
    LIMIT $2
  `, employeeID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// MarkUsed spends one credit exclusively: the guarded update only wins when
// the credit is still free, so two leave requests cannot claim the same one.
func (s *Service) MarkUsed(ctx context.Context, workID, leaveRequestID string) error {
	tag, err := s.DB.Exec(ctx, `
    UPDATE ccl_work_requests
    SET is_used = true, used_by_request_id = $1
    WHERE id = $2 AND status = 'approved' AND NOT is_used
  `, leaveRequestID, workID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCreditTaken
	}
	return nil
}

// ReleaseFor frees every credit held by a leave request, returning how many
// were released.
func (s *Service) ReleaseFor(ctx context.Context, leaveRequestID string) (int, error) {
	tag, err := s.DB.Exec(ctx, `
    UPDATE ccl_work_requests
    SET is_used = false, used_by_request_id = NULL
    WHERE used_by_request_id = $1
  `, leaveRequestID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *Service) Get(ctx context.Context, id string) (WorkRequest, error) {
	return s.Store.Get(ctx, id)
}

// ListVisible scopes listing by role the same way leave listing does.
func (s *Service) ListVisible(ctx context.Context, actor auth.Claims, filter Filter, limit, offset int) ([]WorkRequest, error) {
	switch actor.RoleName {
	case auth.RoleEmployee:
		emp, err := s.Employees.GetByUserID(ctx, actor.UserID)
		if err != nil {
			return nil, err
		}
		filter.EmployeeID = emp.ID
	case auth.RoleHOD:
		emp, err := s.Employees.GetByUserID(ctx, actor.UserID)
		if err != nil {
			return nil, err
		}
		filter.Department = emp.Department
	}
	return s.Store.List(ctx, filter, limit, offset)
}

func (s *Service) authorize(ctx context.Context, actor auth.Claims, owner employee.Employee) error {
	switch actor.RoleName {
	case auth.RoleHR, auth.RolePrincipal, auth.RoleAdmin:
		return nil
	case auth.RoleHOD:
		approver, err := s.Employees.GetByUserID(ctx, actor.UserID)
		if err != nil {
			return err
		}
		if approver.Department != owner.Department && approver.ID != owner.FirstApproverID {
			return ErrWrongScope
		}
		return nil
	}
	return ErrWrongScope
}

func (s *Service) firstReviewerUserID(ctx context.Context, emp employee.Employee) (string, error) {
	if emp.FirstApproverID != "" {
		return s.Employees.UserIDByEmployeeID(ctx, emp.FirstApproverID)
	}
	if emp.StaffType == employee.StaffTeaching {
		return s.Employees.HODUserID(ctx, emp.Department)
	}
	userIDs, err := s.Auth.UserIDsByRole(ctx, auth.RoleHR)
	if err != nil || len(userIDs) == 0 {
		return "", err
	}
	return userIDs[0], nil
}
