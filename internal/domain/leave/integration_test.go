package leave

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusleave/internal/domain/auth"
	"campusleave/internal/domain/ccl"
	"campusleave/internal/domain/employee"
	"campusleave/internal/domain/ledger"
	"campusleave/internal/domain/notifications"
	"campusleave/internal/domain/requestid"
	"campusleave/internal/domain/schedule"
	"campusleave/internal/platform/config"
	"campusleave/internal/platform/db"
)

// The tests in this file run against a real Postgres database and exercise
// the submit/forward/approve lifecycle end to end, including the concurrent
// paths the row locks exist for. They skip unless TEST_DATABASE_URL is set.

type testEnv struct {
	pool      *pgxpool.Pool
	leave     *Service
	ccl       *ccl.Service
	ledger    *ledger.Service
	employees *employee.Store
	auth      *auth.Store
	ctx       context.Context
	creditSeq int
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, db.Migrate(ctx, pool, "../../../migrations"))
	require.NoError(t, db.Seed(ctx, pool, config.Config{}))

	_, err = pool.Exec(ctx, `
    TRUNCATE leave_substitutions, ccl_work_requests, leave_requests, balance_ledger,
      notifications, outbox_events, audit_events, job_runs, idempotency_keys,
      request_sequences, sessions, password_resets, employees, users CASCADE
  `)
	require.NoError(t, err)

	authStore := auth.NewStore(pool)
	ledgerSvc := ledger.New(pool)
	employeeStore := employee.NewStore(pool)
	notifier := notifications.New(pool, nil, "test@example.edu")
	ids := requestid.New()

	cclSvc := &ccl.Service{
		DB:        pool,
		Store:     ccl.NewStore(pool),
		Employees: employeeStore,
		Ledger:    ledgerSvc,
		IDs:       ids,
		Notifier:  notifier,
		Auth:      authStore,
	}
	leaveSvc := &Service{
		DB:        pool,
		Store:     NewStore(pool),
		Employees: employeeStore,
		Ledger:    ledgerSvc,
		IDs:       ids,
		Schedule:  schedule.NewValidator(pool),
		Notifier:  notifier,
		Auth:      authStore,
		Credits:   cclSvc,
	}

	return &testEnv{
		pool:      pool,
		leave:     leaveSvc,
		ccl:       cclSvc,
		ledger:    ledgerSvc,
		employees: employeeStore,
		auth:      authStore,
		ctx:       ctx,
	}
}

func (env *testEnv) createAccount(t *testing.T, role, staffType, department string, leaveBal, cclBal float64) (userID, employeeID string, claims auth.Claims) {
	t.Helper()
	roleID, err := env.auth.RoleIDByName(env.ctx, role)
	require.NoError(t, err)

	email := fmt.Sprintf("%s-%d@example.edu", role, time.Now().UnixNano())
	userID, err = env.auth.CreateUser(env.ctx, email, "$2a$10$unusedhashunusedhashunusedhashun", role)
	require.NoError(t, err)

	employeeID, err = env.employees.Create(env.ctx, employee.CreateInput{
		UserID:    userID,
		StaffID:   fmt.Sprintf("STF-%d", time.Now().UnixNano()),
		FirstName: "Test",
		LastName:  role,
		Email:     email,
		StaffType: staffType,
		JoinedOn:  time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	if department != "" {
		_, err = env.pool.Exec(env.ctx, "UPDATE employees SET department = $1 WHERE id = $2", department, employeeID)
		require.NoError(t, err)
	}
	_, err = env.pool.Exec(env.ctx, "UPDATE employees SET leave_balance = $1, ccl_balance = $2 WHERE id = $3", leaveBal, cclBal, employeeID)
	require.NoError(t, err)

	return userID, employeeID, auth.Claims{UserID: userID, RoleID: roleID, RoleName: role}
}

// addApprovedCredit plants an already approved, unspent work record, the state
// a compensatory request links against.
func (env *testEnv) addApprovedCredit(t *testing.T, employeeID string) string {
	t.Helper()
	env.creditSeq++
	id := fmt.Sprintf("CCLW2025NT9%03d", env.creditSeq)
	_, err := env.pool.Exec(env.ctx, `
    INSERT INTO ccl_work_requests (id, employee_id, work_date, reason, status, second_decided_at)
    VALUES ($1, $2, $3, 'extra duty', 'approved', now())
  `, id, employeeID, time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return id
}

func (env *testEnv) cclBalance(t *testing.T, employeeID string) float64 {
	t.Helper()
	_, bal, err := env.ledger.Balances(env.ctx, employeeID)
	require.NoError(t, err)
	return bal
}

func (env *testEnv) leaveBalance(t *testing.T, employeeID string) float64 {
	t.Helper()
	bal, _, err := env.ledger.Balances(env.ctx, employeeID)
	require.NoError(t, err)
	return bal
}

func TestConcurrentApprovalsDebitOnce(t *testing.T) {
	env := newTestEnv(t)
	userID, employeeID, _ := env.createAccount(t, auth.RoleEmployee, employee.StaffNonTeaching, "", 1.0, 0)
	_, _, principal := env.createAccount(t, auth.RolePrincipal, employee.StaffNonTeaching, "", 0, 0)

	// Two one-day casual requests in different months, so each is fully paid.
	first, err := env.leave.Submit(env.ctx, userID, SubmitInput{
		LeaveType: TypeCasual,
		StartDate: time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC),
		Reason:    "personal",
	})
	require.NoError(t, err)
	second, err := env.leave.Submit(env.ctx, userID, SubmitInput{
		LeaveType: TypeCasual,
		StartDate: time.Date(2025, 4, 7, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 4, 7, 0, 0, 0, 0, time.UTC),
		Reason:    "personal",
	})
	require.NoError(t, err)

	for _, id := range []string{first.ID, second.ID} {
		_, err := env.leave.Forward(env.ctx, principal, id, "endorsed")
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for _, id := range []string{first.ID, second.ID} {
		wg.Add(1)
		go func(requestID string) {
			defer wg.Done()
			_, err := env.leave.Approve(env.ctx, principal, requestID, ApproveInput{Remark: "ok"})
			results <- err
		}(id)
	}
	wg.Wait()
	close(results)

	var approved, insufficient int
	for err := range results {
		var balErr *ledger.InsufficientBalanceError
		switch {
		case err == nil:
			approved++
		case errors.As(err, &balErr):
			insufficient++
		default:
			t.Fatalf("unexpected approve error: %v", err)
		}
	}
	assert.Equal(t, 1, approved)
	assert.Equal(t, 1, insufficient)
	assert.Equal(t, 0.0, env.leaveBalance(t, employeeID))
}

func TestRejectAfterApprovalRestoresExactDebit(t *testing.T) {
	env := newTestEnv(t)
	userID, employeeID, _ := env.createAccount(t, auth.RoleEmployee, employee.StaffNonTeaching, "", 2.0, 0)
	_, _, principal := env.createAccount(t, auth.RolePrincipal, employee.StaffNonTeaching, "", 0, 0)

	req, err := env.leave.Submit(env.ctx, userID, SubmitInput{
		LeaveType: TypeCasual,
		StartDate: time.Date(2025, 5, 5, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 5, 5, 0, 0, 0, 0, time.UTC),
		Reason:    "personal",
	})
	require.NoError(t, err)

	_, err = env.leave.Forward(env.ctx, principal, req.ID, "")
	require.NoError(t, err)
	approved, err := env.leave.Approve(env.ctx, principal, req.ID, ApproveInput{})
	require.NoError(t, err)
	assert.Equal(t, 1.0, approved.DebitedDays)
	assert.Equal(t, 1.0, env.leaveBalance(t, employeeID))

	rejected, err := env.leave.Reject(env.ctx, principal, req.ID, "revoked")
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, rejected.Status)
	assert.Equal(t, 2.0, env.leaveBalance(t, employeeID))

	entries, err := env.ledger.History(env.ctx, employeeID, ledger.BalanceLeave, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, ledger.DirectionRestored, entries[0].Direction)
	assert.Equal(t, 1.0, entries[0].Amount)

	// A second reject attempt hits the terminal guard.
	_, err = env.leave.Reject(env.ctx, principal, req.ID, "again")
	assert.ErrorIs(t, err, ErrAlreadyTerminal)
}

func TestConcurrentSubmissionsYieldContiguousIDs(t *testing.T) {
	env := newTestEnv(t)
	userID, _, _ := env.createAccount(t, auth.RoleEmployee, employee.StaffNonTeaching, "", 0, 0)

	const workers = 20
	ids := make(chan string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(day int) {
			defer wg.Done()
			date := time.Date(2025, 7, 1+day%25, 0, 0, 0, 0, time.UTC)
			req, err := env.leave.Submit(env.ctx, userID, SubmitInput{
				LeaveType: TypeOnDuty,
				StartDate: date,
				EndDate:   date,
				Reason:    "duty",
			})
			if err != nil {
				t.Errorf("submit failed: %v", err)
				return
			}
			ids <- req.ID
		}(i)
	}
	wg.Wait()
	close(ids)

	var sequences []int
	for id := range ids {
		assert.Equal(t, "OD2025NT", id[:len(id)-4])
		seq, err := strconv.Atoi(id[len(id)-4:])
		require.NoError(t, err)
		sequences = append(sequences, seq)
	}
	require.Len(t, sequences, workers)
	sort.Ints(sequences)
	for i, seq := range sequences {
		assert.Equal(t, i+1, seq, "sequence numbers must be contiguous with no gaps")
	}
}

func TestCompensatoryReservationBlocksOverdraw(t *testing.T) {
	env := newTestEnv(t)
	userID, employeeID, _ := env.createAccount(t, auth.RoleEmployee, employee.StaffNonTeaching, "", 0, 1.0)
	env.addApprovedCredit(t, employeeID)
	env.addApprovedCredit(t, employeeID)

	submitHalf := func(day int) error {
		date := time.Date(2025, 8, day, 0, 0, 0, 0, time.UTC)
		_, err := env.leave.Submit(env.ctx, userID, SubmitInput{
			LeaveType: TypeCompensatory,
			HalfDay:   true,
			Session:   SessionMorning,
			StartDate: date,
			EndDate:   date,
			Reason:    "comp off",
		})
		return err
	}

	require.NoError(t, submitHalf(4))
	require.NoError(t, submitHalf(5))

	// Both pending halves reserve the whole balance, so a third must fail even
	// though nothing has been debited yet.
	err := submitHalf(6)
	var balErr *ledger.InsufficientBalanceError
	require.ErrorAs(t, err, &balErr)
	assert.Equal(t, ledger.BalanceCCL, balErr.Balance)
	assert.Equal(t, 1.0, env.cclBalance(t, employeeID))

	var linked int
	require.NoError(t, env.pool.QueryRow(env.ctx,
		"SELECT COUNT(1) FROM ccl_work_requests WHERE employee_id = $1 AND is_used", employeeID).Scan(&linked))
	assert.Equal(t, 2, linked)
}

func TestRejectingCompensatoryLeaveFreesCredits(t *testing.T) {
	env := newTestEnv(t)
	userID, employeeID, _ := env.createAccount(t, auth.RoleEmployee, employee.StaffNonTeaching, "", 0, 1.0)
	creditID := env.addApprovedCredit(t, employeeID)
	_, _, principal := env.createAccount(t, auth.RolePrincipal, employee.StaffNonTeaching, "", 0, 0)

	req, err := env.leave.Submit(env.ctx, userID, SubmitInput{
		LeaveType: TypeCompensatory,
		StartDate: time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC),
		Reason:    "comp off",
	})
	require.NoError(t, err)

	var used bool
	require.NoError(t, env.pool.QueryRow(env.ctx,
		"SELECT is_used FROM ccl_work_requests WHERE id = $1", creditID).Scan(&used))
	assert.True(t, used)

	_, err = env.leave.Forward(env.ctx, principal, req.ID, "")
	require.NoError(t, err)
	_, err = env.leave.Approve(env.ctx, principal, req.ID, ApproveInput{})
	require.NoError(t, err)
	assert.Equal(t, 0.0, env.cclBalance(t, employeeID))

	_, err = env.leave.Reject(env.ctx, principal, req.ID, "revoked")
	require.NoError(t, err)

	assert.Equal(t, 1.0, env.cclBalance(t, employeeID))
	require.NoError(t, env.pool.QueryRow(env.ctx,
		"SELECT is_used FROM ccl_work_requests WHERE id = $1", creditID).Scan(&used))
	assert.False(t, used, "rejection must free the linked credit")
}

func TestDeletePendingCompensatoryFreesCredits(t *testing.T) {
	env := newTestEnv(t)
	userID, employeeID, _ := env.createAccount(t, auth.RoleEmployee, employee.StaffNonTeaching, "", 0, 1.0)
	creditID := env.addApprovedCredit(t, employeeID)

	req, err := env.leave.Submit(env.ctx, userID, SubmitInput{
		LeaveType: TypeCompensatory,
		StartDate: time.Date(2025, 10, 2, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 10, 2, 0, 0, 0, 0, time.UTC),
		Reason:    "comp off",
	})
	require.NoError(t, err)

	require.NoError(t, env.leave.Delete(env.ctx, userID, req.ID))

	var used bool
	require.NoError(t, env.pool.QueryRow(env.ctx,
		"SELECT is_used FROM ccl_work_requests WHERE id = $1", creditID).Scan(&used))
	assert.False(t, used)
	assert.Equal(t, 1.0, env.cclBalance(t, employeeID))
}

func TestCasualSplitPersistsPaidAndLOPDays(t *testing.T) {
	env := newTestEnv(t)
	userID, _, _ := env.createAccount(t, auth.RoleEmployee, employee.StaffNonTeaching, "", 5.0, 0)

	// Three days in one month: one paid, two loss of pay.
	first, err := env.leave.Submit(env.ctx, userID, SubmitInput{
		LeaveType: TypeCasual,
		StartDate: time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 11, 5, 0, 0, 0, 0, time.UTC),
		Reason:    "family",
	})
	require.NoError(t, err)
	assert.Equal(t, 3.0, first.Days)
	assert.Equal(t, 1.0, first.CLDays)
	assert.Equal(t, 2.0, first.LOPDays)

	// The month's paid day is claimed by the pending request above, so a second
	// request in the same month is entirely loss of pay.
	second, err := env.leave.Submit(env.ctx, userID, SubmitInput{
		LeaveType: TypeCasual,
		StartDate: time.Date(2025, 11, 20, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 11, 20, 0, 0, 0, 0, time.UTC),
		Reason:    "errand",
	})
	require.NoError(t, err)
	assert.Equal(t, 0.0, second.CLDays)
	assert.Equal(t, 1.0, second.LOPDays)
}

func TestHalfDayTeachingLeaveNeedsNoSubstitutes(t *testing.T) {
	env := newTestEnv(t)
	userID, _, _ := env.createAccount(t, auth.RoleEmployee, employee.StaffTeaching, "CSE", 2.0, 0)

	// A half day keeps the teacher on campus for the other session, so the
	// request carries no substitute entries and must still go through.
	day := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	req, err := env.leave.Submit(env.ctx, userID, SubmitInput{
		LeaveType: TypeCasual,
		HalfDay:   true,
		Session:   SessionMorning,
		StartDate: day,
		EndDate:   day,
		Reason:    "clinic visit",
	})
	require.NoError(t, err)
	assert.Equal(t, 0.5, req.Days)
	assert.Equal(t, StatusPending, req.Status)

	// A full day from the same teacher still demands coverage.
	fullDay := day.AddDate(0, 1, 0)
	_, err = env.leave.Submit(env.ctx, userID, SubmitInput{
		LeaveType: TypeCasual,
		StartDate: fullDay,
		EndDate:   fullDay,
		Reason:    "no cover arranged",
	})
	var subErr *SubstitutionError
	require.ErrorAs(t, err, &subErr)
	require.NotEmpty(t, subErr.Issues)
	assert.Equal(t, "no substitute assigned", subErr.Issues[0].Reason)
}

func TestCompensatoryHalfDaysSpendWholeCreditFully(t *testing.T) {
	env := newTestEnv(t)
	userID, employeeID, _ := env.createAccount(t, auth.RoleEmployee, employee.StaffNonTeaching, "", 0, 1.0)
	creditID := env.addApprovedCredit(t, employeeID)
	_, _, principal := env.createAccount(t, auth.RolePrincipal, employee.StaffNonTeaching, "", 0, 0)

	submitHalf := func(day int) (Request, error) {
		date := time.Date(2025, 12, day, 0, 0, 0, 0, time.UTC)
		return env.leave.Submit(env.ctx, userID, SubmitInput{
			LeaveType: TypeCompensatory,
			HalfDay:   true,
			Session:   SessionMorning,
			StartDate: date,
			EndDate:   date,
			Reason:    "comp off",
		})
	}

	first, err := submitHalf(1)
	require.NoError(t, err)

	var usedBy string
	require.NoError(t, env.pool.QueryRow(env.ctx,
		"SELECT COALESCE(used_by_request_id,'') FROM ccl_work_requests WHERE id = $1", creditID).Scan(&usedBy))
	assert.Equal(t, first.ID, usedBy)

	// Half a day of balance remains even though the sole work record is spent,
	// so a second half day must still be accepted.
	second, err := submitHalf(2)
	require.NoError(t, err)

	_, err = submitHalf(3)
	var balErr *ledger.InsufficientBalanceError
	require.ErrorAs(t, err, &balErr)
	assert.Equal(t, ledger.BalanceCCL, balErr.Balance)

	for _, req := range []Request{first, second} {
		_, err = env.leave.Forward(env.ctx, principal, req.ID, "")
		require.NoError(t, err)
		approved, err := env.leave.Approve(env.ctx, principal, req.ID, ApproveInput{})
		require.NoError(t, err)
		assert.Equal(t, 0.5, approved.DebitedDays)
	}
	assert.Equal(t, 0.0, env.cclBalance(t, employeeID))
}

func TestRejectedCasualRequestFreesMonthPaidDay(t *testing.T) {
	env := newTestEnv(t)
	userID, _, _ := env.createAccount(t, auth.RoleEmployee, employee.StaffNonTeaching, "", 5.0, 0)
	_, _, principal := env.createAccount(t, auth.RolePrincipal, employee.StaffNonTeaching, "", 0, 0)

	first, err := env.leave.Submit(env.ctx, userID, SubmitInput{
		LeaveType: TypeCasual,
		StartDate: time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC),
		Reason:    "personal",
	})
	require.NoError(t, err)
	assert.Equal(t, 1.0, first.CLDays)

	_, err = env.leave.Reject(env.ctx, principal, first.ID, "not granted")
	require.NoError(t, err)

	// The rejected request no longer counts against the month, so a
	// resubmission claims the paid day again.
	second, err := env.leave.Submit(env.ctx, userID, SubmitInput{
		LeaveType: TypeCasual,
		StartDate: time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC),
		Reason:    "personal",
	})
	require.NoError(t, err)
	assert.Equal(t, 1.0, second.CLDays)
	assert.Equal(t, 0.0, second.LOPDays)
}

func TestWorkRequestLifecycleEarnsOneCredit(t *testing.T) {
	env := newTestEnv(t)
	userID, employeeID, _ := env.createAccount(t, auth.RoleEmployee, employee.StaffNonTeaching, "", 0, 0)
	_, _, principal := env.createAccount(t, auth.RolePrincipal, employee.StaffNonTeaching, "", 0, 0)
	_, _, hr := env.createAccount(t, auth.RoleHR, employee.StaffNonTeaching, "", 0, 0)

	work, err := env.ccl.SubmitWork(env.ctx, userID, ccl.SubmitInput{
		WorkDate: time.Date(2025, 2, 15, 0, 0, 0, 0, time.UTC),
		Reason:   "weekend admissions duty",
	})
	require.NoError(t, err)
	assert.Equal(t, ccl.StatusPending, work.Status)

	// Approval before forwarding is rejected at the stage guard.
	_, err = env.ccl.Approve(env.ctx, principal, work.ID, "")
	assert.ErrorIs(t, err, ccl.ErrNotForwarded)

	_, err = env.ccl.Forward(env.ctx, hr, work.ID, "confirmed")
	require.NoError(t, err)

	approved, err := env.ccl.Approve(env.ctx, principal, work.ID, "granted")
	require.NoError(t, err)
	assert.Equal(t, ccl.StatusApproved, approved.Status)
	assert.Equal(t, 1.0, env.cclBalance(t, employeeID))

	// The decision is final at both stages.
	_, err = env.ccl.Reject(env.ctx, principal, work.ID, "changed my mind")
	assert.ErrorIs(t, err, ccl.ErrAlreadyDecided)
}
