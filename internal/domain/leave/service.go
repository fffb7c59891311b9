package leave

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"campusleave/internal/domain/auth"
	"campusleave/internal/domain/employee"
	"campusleave/internal/domain/ledger"
	"campusleave/internal/domain/notifications"
	"campusleave/internal/domain/requestid"
	"campusleave/internal/domain/schedule"
)

var (
	ErrNotOwner    = errors.New("request belongs to another employee")
	ErrNotPending  = errors.New("only pending requests can be deleted")
	ErrWrongScope  = errors.New("request is outside the approver's department")
	ErrUnknownType = errors.New("unknown leave type")
)

// SubstitutionError carries the per-day problems found in a proposed
// substitute arrangement.
type SubstitutionError struct {
	Issues []schedule.Issue
}

func (e *SubstitutionError) Error() string {
	return fmt.Sprintf("substitute arrangement has %d issue(s)", len(e.Issues))
}

// CreditLinker ties compensatory leave to the work records that earned the
// credits. The concrete implementation lives with the work request lifecycle.
type CreditLinker interface {
	AvailableCreditIDs(ctx context.Context, employeeID string, limit int) ([]string, error)
	MarkUsed(ctx context.Context, workID, leaveRequestID string) error
	ReleaseFor(ctx context.Context, leaveRequestID string) (int, error)
}

type Service struct {
	DB        *pgxpool.Pool
	Store     *Store
	Employees *employee.Store
	Ledger    *ledger.Service
	IDs       *requestid.Generator
	Schedule  *schedule.Validator
	Notifier  *notifications.Service
	Auth      *auth.Store
	Credits   CreditLinker
}

type SubmitInput struct {
	LeaveType     Type
	HalfDay       bool
	Session       string
	StartDate     time.Time
	EndDate       time.Time
	Reason        string
	Substitutions []schedule.Entry
}

// Submit validates and persists a new request. The identifier, the balance
// checks and the substitution rows all commit atomically; for compensatory
// leave any free work credits are linked after commit, and a failure there
// is logged rather than unwound.
func (s *Service) Submit(ctx context.Context, callerUserID string, in SubmitInput) (Request, error) {
	emp, err := s.Employees.GetByUserID(ctx, callerUserID)
	if err != nil {
		return Request{}, err
	}

	if !ValidType(in.LeaveType) {
		return Request{}, ErrUnknownType
	}
	if err := ValidateHalfDay(in.HalfDay, in.Session); err != nil {
		return Request{}, err
	}
	days, err := CalculateDays(in.StartDate, in.EndDate, in.HalfDay)
	if err != nil {
		return Request{}, err
	}

	// Half-day leave keeps the teacher on campus for the other session, so
	// substitute coverage is only demanded for full days.
	if emp.StaffType == employee.StaffTeaching && !in.HalfDay {
		issues := schedule.CheckCoverage(in.StartDate, in.EndDate, in.Substitutions)
		if len(issues) == 0 {
			issues, err = s.Schedule.CheckConflicts(ctx, emp.ID, in.Substitutions)
			if err != nil {
				return Request{}, err
			}
		}
		if len(issues) > 0 {
			return Request{}, &SubstitutionError{Issues: issues}
		}
	}

	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Request{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var leaveBal, cclBal float64
	if err := tx.QueryRow(ctx, "SELECT leave_balance, ccl_balance FROM employees WHERE id = $1 FOR UPDATE", emp.ID).Scan(&leaveBal, &cclBal); err != nil {
		return Request{}, err
	}

	req := Request{
		EmployeeID:     emp.ID,
		LeaveType:      in.LeaveType,
		HalfDay:        in.HalfDay,
		HalfDaySession: in.Session,
		StartDate:      in.StartDate,
		EndDate:        in.EndDate,
		Days:           days,
		Reason:         in.Reason,
		Status:         StatusPending,
	}

	var creditIDs []string
	switch in.LeaveType {
	case TypeCasual:
		used, err := s.Store.CLDaysInMonth(ctx, tx, emp.ID, in.StartDate, "")
		if err != nil {
			return Request{}, err
		}
		req.CLDays, req.LOPDays = SplitCasualDays(days, used)
		if req.CLDays > leaveBal {
			return Request{}, &ledger.InsufficientBalanceError{Balance: ledger.BalanceLeave, Available: leaveBal, Required: req.CLDays}
		}
	case TypeCompensatory:
		reserved, err := s.Store.ReservedCompensatoryDays(ctx, tx, emp.ID)
		if err != nil {
			return Request{}, err
		}
		if cclBal-reserved < days {
			return Request{}, &ledger.InsufficientBalanceError{Balance: ledger.BalanceCCL, Available: cclBal - reserved, Required: days}
		}
		// Eligibility is decided by the balance alone. Unspent work records
		// are linked when they exist, but a half-day left over from a whole
		// credit must stay spendable even with no free record to point at.
		creditIDs, err = s.Credits.AvailableCreditIDs(ctx, emp.ID, int(math.Ceil(days)))
		if err != nil {
			return Request{}, err
		}
	}

	year := in.StartDate.Year()
	scope := emp.SequenceScope()
	typeCode := TypeCode(in.LeaveType)

	for attempt := 1; ; attempt++ {
		nested, err := tx.Begin(ctx)
		if err != nil {
			return Request{}, err
		}
		id, err := s.IDs.Next(ctx, nested, typeCode, year, scope)
		if err == nil {
			req.ID = id
			err = s.Store.Insert(ctx, nested, req)
		}
		if err == nil {
			if err := nested.Commit(ctx); err != nil {
				return Request{}, err
			}
			break
		}

		_ = nested.Rollback(ctx)
		if !requestid.IsUniqueViolation(err) || attempt >= requestid.MaxAttempts {
			return Request{}, err
		}
		if err := s.IDs.Resync(ctx, tx, typeCode, year, scope, "leave_requests"); err != nil {
			return Request{}, err
		}
		time.Sleep(requestid.Backoff(attempt))
	}

	if emp.StaffType == employee.StaffTeaching && !in.HalfDay {
		if err := s.Schedule.Insert(ctx, tx, req.ID, in.Substitutions); err != nil {
			return Request{}, err
		}
	}

	approverUserID, err := s.firstApproverUserID(ctx, emp)
	if err != nil {
		slog.Warn("first approver lookup failed, submitting without review notification",
			"employeeId", emp.ID, "err", err)
	}
	if err == nil && approverUserID != "" {
		title := fmt.Sprintf("Leave request %s awaits your review", req.ID)
		body := fmt.Sprintf("%s %s requested %.1f day(s) of %s leave from %s.",
			emp.FirstName, emp.LastName, days, in.LeaveType, in.StartDate.Format("2006-01-02"))
		if err := s.Notifier.Enqueue(ctx, tx, approverUserID, notifications.TypeLeaveSubmitted, title, body); err != nil {
			return Request{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Request{}, err
	}

	for _, creditID := range creditIDs {
		if err := s.Credits.MarkUsed(ctx, creditID, req.ID); err != nil {
			slog.Error("failed to mark work credit as used after submit",
				"workId", creditID, "requestId", req.ID, "err", err)
		}
	}

	return s.Store.Get(ctx, req.ID)
}

// Forward endorses a pending request to the deciding authority. Department
// heads may only forward requests from their own department.
func (s *Service) Forward(ctx context.Context, actor auth.Claims, requestID, remark string) (Request, error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Request{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	req, err := s.Store.GetForUpdate(ctx, tx, requestID)
	if err != nil {
		return Request{}, err
	}
	if _, err := NextStatus(req.Status, EventForward); err != nil {
		return Request{}, err
	}

	owner, err := s.Employees.Get(ctx, req.EmployeeID)
	if err != nil {
		return Request{}, err
	}
	if err := s.authorizeForward(ctx, actor, owner); err != nil {
		return Request{}, err
	}

	if err := s.Store.MarkForwarded(ctx, tx, requestID, actor.UserID, remark); err != nil {
		return Request{}, err
	}

	deciders, err := s.Auth.UserIDsByRole(ctx, auth.RolePrincipal)
	if err != nil {
		return Request{}, err
	}
	title := fmt.Sprintf("Leave request %s forwarded for decision", requestID)
	if err := s.Notifier.EnqueueMany(ctx, tx, deciders, notifications.TypeLeaveForwarded, title, remark); err != nil {
		return Request{}, err
	}
	if owner.UserID != "" {
		if err := s.Notifier.Enqueue(ctx, tx, owner.UserID, notifications.TypeLeaveForwarded,
			fmt.Sprintf("Your leave request %s was forwarded", requestID), remark); err != nil {
			return Request{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Request{}, err
	}
	return s.Store.Get(ctx, requestID)
}

// ApproveInput optionally overrides the requested range. A zero value keeps
// the request as submitted.
type ApproveInput struct {
	Remark    string
	Override  bool
	StartDate time.Time
	EndDate   time.Time
	HalfDay   bool
	Session   string
}

// Approve finalizes a forwarded request and debits the balance it consumes.
// The debit and the status change share one transaction, so a failed debit
// leaves the request forwarded.
func (s *Service) Approve(ctx context.Context, actor auth.Claims, requestID string, in ApproveInput) (Request, error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Request{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	req, err := s.Store.GetForUpdate(ctx, tx, requestID)
	if err != nil {
		return Request{}, err
	}
	if _, err := NextStatus(req.Status, EventApprove); err != nil {
		return Request{}, err
	}

	if in.Override {
		if err := ValidateHalfDay(in.HalfDay, in.Session); err != nil {
			return Request{}, err
		}
		days, err := CalculateDays(in.StartDate, in.EndDate, in.HalfDay)
		if err != nil {
			return Request{}, err
		}
		override := Override{StartDate: in.StartDate, EndDate: in.EndDate, Days: days}
		if req.LeaveType == TypeCasual {
			used, err := s.Store.CLDaysInMonth(ctx, tx, req.EmployeeID, in.StartDate, req.ID)
			if err != nil {
				return Request{}, err
			}
			override.CLDays, override.LOPDays = SplitCasualDays(days, used)
		}
		if err := s.Store.ApplyOverride(ctx, tx, requestID, req, override); err != nil {
			return Request{}, err
		}
		req.StartDate, req.EndDate, req.Days = in.StartDate, in.EndDate, days
		req.CLDays, req.LOPDays = override.CLDays, override.LOPDays
	}

	debited := 0.0
	switch req.LeaveType {
	case TypeCasual:
		if req.CLDays > 0 {
			if err := s.Ledger.Adjust(ctx, tx, req.EmployeeID, ledger.BalanceLeave, ledger.DirectionUsed,
				req.CLDays, req.ID, "leave_request", "casual leave approved"); err != nil {
				return Request{}, err
			}
			debited = req.CLDays
		}
	case TypeCompensatory:
		if err := s.Ledger.Adjust(ctx, tx, req.EmployeeID, ledger.BalanceCCL, ledger.DirectionUsed,
			req.Days, req.ID, "leave_request", "compensatory leave approved"); err != nil {
			return Request{}, err
		}
		debited = req.Days
	case TypeOnDuty:
		// On-duty leave consumes no balance.
	}

	if err := s.Store.MarkDecided(ctx, tx, requestID, Decision{
		Status: StatusApproved, DecidedBy: actor.UserID, DecisionRemark: in.Remark, DebitedDays: debited,
	}); err != nil {
		return Request{}, err
	}

	if err := s.notifyOwner(ctx, tx, req.EmployeeID, notifications.TypeLeaveApproved,
		fmt.Sprintf("Your leave request %s was approved", requestID), in.Remark); err != nil {
		return Request{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Request{}, err
	}
	return s.Store.Get(ctx, requestID)
}

// Reject declines a request at any live stage. Rejecting an already approved
// request restores exactly what its approval debited.
func (s *Service) Reject(ctx context.Context, actor auth.Claims, requestID, remark string) (Request, error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Request{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	req, err := s.Store.GetForUpdate(ctx, tx, requestID)
	if err != nil {
		return Request{}, err
	}
	if _, err := NextStatus(req.Status, EventReject); err != nil {
		return Request{}, err
	}

	if req.Status == StatusApproved && req.DebitedDays > 0 {
		balance := ledger.BalanceLeave
		if req.LeaveType == TypeCompensatory {
			balance = ledger.BalanceCCL
		}
		if err := s.Ledger.Adjust(ctx, tx, req.EmployeeID, balance, ledger.DirectionRestored,
			req.DebitedDays, req.ID, "leave_request", "approval revoked"); err != nil {
			return Request{}, err
		}
	}

	if err := s.Store.MarkDecided(ctx, tx, requestID, Decision{
		Status: StatusRejected, DecidedBy: actor.UserID, DecisionRemark: remark, DebitedDays: 0,
	}); err != nil {
		return Request{}, err
	}

	if err := s.notifyOwner(ctx, tx, req.EmployeeID, notifications.TypeLeaveRejected,
		fmt.Sprintf("Your leave request %s was rejected", requestID), remark); err != nil {
		return Request{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Request{}, err
	}

	if req.LeaveType == TypeCompensatory {
		if _, err := s.Credits.ReleaseFor(ctx, requestID); err != nil {
			slog.Error("failed to release work credits after rejection", "requestId", requestID, "err", err)
		}
	}

	return s.Store.Get(ctx, requestID)
}

// Delete withdraws a request. Only the owner may delete, and only while it is
// still pending; linked work credits become available again afterwards.
func (s *Service) Delete(ctx context.Context, callerUserID, requestID string) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	req, err := s.Store.GetForUpdate(ctx, tx, requestID)
	if err != nil {
		return err
	}
	owner, err := s.Employees.Get(ctx, req.EmployeeID)
	if err != nil {
		return err
	}
	if owner.UserID != callerUserID {
		return ErrNotOwner
	}
	if req.Status != StatusPending {
		return ErrNotPending
	}

	if err := s.Store.Delete(ctx, tx, requestID); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	if req.LeaveType == TypeCompensatory {
		if _, err := s.Credits.ReleaseFor(ctx, requestID); err != nil {
			slog.Error("failed to release work credits after delete", "requestId", requestID, "err", err)
		}
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (Request, error) {
	return s.Store.Get(ctx, id)
}

// ListVisible scopes the listing to what the caller's role may see: employees
// see their own requests, department heads their department, everyone else
// the whole institution.
func (s *Service) ListVisible(ctx context.Context, actor auth.Claims, filter Filter, limit, offset int) ([]Request, error) {
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

// VisibleTo reports whether the actor's role scope covers a request.
func (s *Service) VisibleTo(ctx context.Context, actor auth.Claims, req Request) (bool, error) {
	switch actor.RoleName {
	case auth.RoleEmployee:
		emp, err := s.Employees.GetByUserID(ctx, actor.UserID)
		if err != nil {
			return false, err
		}
		return emp.ID == req.EmployeeID, nil
	case auth.RoleHOD:
		approver, err := s.Employees.GetByUserID(ctx, actor.UserID)
		if err != nil {
			return false, err
		}
		owner, err := s.Employees.Get(ctx, req.EmployeeID)
		if err != nil {
			return false, err
		}
		return approver.Department == owner.Department || approver.ID == owner.FirstApproverID, nil
	}
	return true, nil
}

func (s *Service) authorizeForward(ctx context.Context, actor auth.Claims, owner employee.Employee) error {
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

// firstApproverUserID resolves who reviews a fresh request: the designated
// first approver if set, otherwise the department head for teaching staff or
// any HR user for non-teaching staff.
func (s *Service) firstApproverUserID(ctx context.Context, emp employee.Employee) (string, error) {
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

func (s *Service) notifyOwner(ctx context.Context, tx pgx.Tx, employeeID, ntype, title, body string) error {
	userID, err := s.Employees.UserIDByEmployeeID(ctx, employeeID)
	if err != nil || userID == "" {
		return err
	}
	return s.Notifier.Enqueue(ctx, tx, userID, ntype, title, body)
}
