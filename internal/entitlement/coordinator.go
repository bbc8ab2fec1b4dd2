package entitlement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/tradesuite/rolesync/internal/catalog"
	"github.com/tradesuite/rolesync/internal/directory"
	recerrors "github.com/tradesuite/rolesync/internal/errors"
	"github.com/tradesuite/rolesync/internal/history"
	"github.com/tradesuite/rolesync/internal/metrics"
)

// Gateway reads and updates purchase rows. Satisfied by ledger.Gateway
// implementations; declared here so entitlement does not import ledger.
type Gateway interface {
	// FindRows returns every row whose email matches the normalized email.
	// An empty slice means the email is absent from the ledger.
	FindRows(ctx context.Context, email string) ([]PurchaseRecord, error)

	// UpdateVerification writes the verification columns of one row.
	UpdateVerification(ctx context.Context, row RowRef, accountID, displayName string, verified bool) error
}

// Result is what one reconciliation run produced.
type Result struct {
	Request      Request
	Claim        ClaimStatus
	Decision     Decision
	RolesGranted []string
	RolesRevoked []string
	Removed      bool
	Err          error
}

// Outcome classifies the result for metrics and history.
func (r Result) Outcome() string {
	if r.Err == nil {
		return "applied"
	}
	var recErr *recerrors.ReconcileError
	if errors.As(r.Err, &recErr) {
		switch recErr.Type {
		case recerrors.ErrorTypeConflict, recerrors.ErrorTypeValidation:
			return "rejected"
		}
	}
	return "failed"
}

// Recorder persists reconciliation outcomes. Satisfied by *history.Store.
type Recorder interface {
	Append(ctx context.Context, entry history.Entry) error
}

// Coordinator serializes all mutating reconciliation work per normalized
// email: at most one run is in flight for an email at any time, and queued
// requests for the same email run in FIFO arrival order. Requests for
// different emails proceed in parallel up to the pool bound.
type Coordinator struct {
	ledger    Gateway
	directory directory.Directory
	catalog   *catalog.Catalog
	recorder  Recorder // optional
	metrics   *metrics.ReconcileMetrics

	sem *semaphore.Weighted

	mu     sync.Mutex
	queues map[string][]*job
	wg     sync.WaitGroup
}

type job struct {
	ctx  context.Context
	req  Request
	done chan Result
}

// NewCoordinator builds the coordinator. maxConcurrent bounds how many
// reconciliations (across distinct emails) execute at once.
func NewCoordinator(gw Gateway, dir directory.Directory, products *catalog.Catalog, recorder Recorder, maxConcurrent int) *Coordinator {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Coordinator{
		ledger:    gw,
		directory: dir,
		catalog:   products,
		recorder:  recorder,
		metrics:   metrics.Get(),
		sem:       semaphore.NewWeighted(int64(maxConcurrent)),
		queues:    make(map[string][]*job),
	}
}

// Submit enqueues a request and returns immediately. The returned channel
// receives the result once the run completes; fire-and-forget callers may
// ignore it.
func (c *Coordinator) Submit(ctx context.Context, req Request) <-chan Result {
	done := make(chan Result, 1)

	if err := req.Validate(); err != nil {
		done <- Result{Request: req, Err: recerrors.New(recerrors.ErrorTypeValidation, string(req.Kind), req.Email, err)}
		return done
	}

	j := &job{ctx: ctx, req: req, done: done}

	c.mu.Lock()
	c.queues[req.Email] = append(c.queues[req.Email], j)
	first := len(c.queues[req.Email]) == 1
	c.mu.Unlock()

	c.metrics.QueueEnter()

	if first {
		c.wg.Add(1)
		go c.drain(req.Email)
	}
	return done
}

// Reconcile runs a request and blocks until it completes or ctx is done.
// Used by the DM flow, which replies synchronously with the outcome.
func (c *Coordinator) Reconcile(ctx context.Context, req Request) Result {
	done := c.Submit(ctx, req)
	select {
	case result := <-done:
		return result
	case <-ctx.Done():
		return Result{Request: req, Err: recerrors.WrapTransient(string(req.Kind), req.Email, ctx.Err())}
	}
}

// Wait blocks until all queued work has drained. Used during shutdown.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// drain processes one email's queue in FIFO order until it is empty. Only
// one drain goroutine exists per email at a time.
func (c *Coordinator) drain(email string) {
	defer c.wg.Done()

	for {
		c.mu.Lock()
		queue := c.queues[email]
		if len(queue) == 0 {
			delete(c.queues, email)
			c.mu.Unlock()
			return
		}
		j := queue[0]
		c.mu.Unlock()

		c.metrics.QueueLeave()
		c.run(j)

		c.mu.Lock()
		c.queues[email] = c.queues[email][1:]
		if len(c.queues[email]) == 0 {
			delete(c.queues, email)
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()
	}
}

func (c *Coordinator) run(j *job) {
	start := time.Now()

	if err := c.sem.Acquire(j.ctx, 1); err != nil {
		j.done <- Result{Request: j.req, Err: recerrors.WrapTransient(string(j.req.Kind), j.req.Email, err)}
		return
	}
	c.metrics.InflightEnter()
	defer func() {
		c.metrics.InflightLeave()
		c.sem.Release(1)
	}()

	var result Result
	switch j.req.Kind {
	case TriggerVerify:
		result = c.verify(j.ctx, j.req)
	case TriggerGrant:
		result = c.grant(j.ctx, j.req)
	case TriggerRevoke:
		result = c.revoke(j.ctx, j.req)
	case TriggerRemove:
		result = c.remove(j.ctx, j.req)
	default:
		result = Result{Request: j.req, Err: recerrors.New(recerrors.ErrorTypeValidation, "reconcile", j.req.Email, fmt.Errorf("unknown trigger kind %q", j.req.Kind))}
	}

	outcome := result.Outcome()
	c.metrics.RecordResult(string(j.req.Kind), outcome, start)
	c.record(j.ctx, result, outcome)

	event := log.Info()
	if result.Err != nil {
		event = log.Warn().Err(result.Err)
	}
	event.
		Str("requestID", j.req.ID).
		Str("email", j.req.Email).
		Str("trigger", string(j.req.Kind)).
		Str("outcome", outcome).
		Strs("granted", result.RolesGranted).
		Strs("revoked", result.RolesRevoked).
		Msg("Reconciliation finished")

	j.done <- result
}

func (c *Coordinator) record(ctx context.Context, result Result, outcome string) {
	if c.recorder == nil {
		return
	}

	detail := string(result.Claim)
	if result.Err != nil {
		detail = result.Err.Error()
	}
	roles := append(append([]string(nil), result.RolesGranted...), result.RolesRevoked...)
	entry := history.Entry{
		RequestID: result.Request.ID,
		Email:     result.Request.Email,
		Trigger:   string(result.Request.Kind),
		Outcome:   outcome,
		Detail:    detail,
		Roles:     strings.Join(roles, ","),
	}
	if err := c.recorder.Append(ctx, entry); err != nil {
		log.Warn().Err(err).Str("email", result.Request.Email).Msg("Failed to record reconciliation history")
	}
}

// verify links a directory account to an email and grants whatever the
// current ledger state entitles. Repeat verification by the same owner is an
// idempotent re-grant: role computation re-runs so a previously failed grant
// is repaired by verifying again.
func (c *Coordinator) verify(ctx context.Context, req Request) Result {
	result := Result{Request: req}

	records, err := c.ledger.FindRows(ctx, req.Email)
	if err != nil {
		result.Err = recerrors.WrapTransient("find_rows", req.Email, err)
		return result
	}
	if len(records) == 0 {
		result.Err = recerrors.New(recerrors.ErrorTypeNotFound, "verify", req.Email, fmt.Errorf("no purchase found for this email"))
		return result
	}

	result.Claim = CheckClaim(records, req.AccountID)
	if result.Claim == AlreadyClaimedByOther {
		c.metrics.HijackRejected()
		result.Err = recerrors.WrapConflict("verify", req.Email, fmt.Errorf("email already verified by another account"))
		return result
	}

	// Multi-product purchasers span several rows; every row must reflect
	// the same linked account.
	for _, record := range records {
		if record.Verified && record.AccountID == req.AccountID {
			continue
		}
		if err := c.ledger.UpdateVerification(ctx, record.Row, req.AccountID, req.DisplayName, true); err != nil {
			result.Err = recerrors.WrapTransient("update_verification", req.Email, err)
			return result
		}
	}

	result.Decision = Resolve(records, c.catalog)
	if result.Decision.AccessLevel == AccessFull {
		result.RolesGranted = c.ensureRoles(ctx, req, req.AccountID, result.Decision.Roles)
	}
	return result
}

// grant recomputes the full role union for an already-verified identity and
// grants anything missing. It never revokes as a side effect.
func (c *Coordinator) grant(ctx context.Context, req Request) Result {
	result := Result{Request: req}

	records, err := c.ledger.FindRows(ctx, req.Email)
	if err != nil {
		result.Err = recerrors.WrapTransient("find_rows", req.Email, err)
		return result
	}
	if len(records) == 0 {
		result.Err = recerrors.New(recerrors.ErrorTypeNotFound, "grant", req.Email, fmt.Errorf("no purchase found for this email"))
		return result
	}

	accountID := ClaimingAccount(records)
	if accountID == "" {
		result.Err = recerrors.New(recerrors.ErrorTypeNotFound, "grant", req.Email, fmt.Errorf("email not verified with any account"))
		return result
	}

	result.Decision = Resolve(records, c.catalog)
	if result.Decision.AccessLevel != AccessFull {
		return result
	}

	result.RolesGranted = c.ensureRoles(ctx, req, accountID, result.Decision.Roles)
	if len(result.RolesGranted) > 0 {
		c.bestEffortDM(ctx, req, accountID,
			"Your subscription is active! Your roles have been assigned and you now have access to all premium channels.")
	}
	return result
}

// revoke removes exactly the roles the catalog maps for the refunded or
// cancelled product. Roles from other still-paid products remain granted.
func (c *Coordinator) revoke(ctx context.Context, req Request) Result {
	result := Result{Request: req}

	records, err := c.ledger.FindRows(ctx, req.Email)
	if err != nil {
		result.Err = recerrors.WrapTransient("find_rows", req.Email, err)
		return result
	}
	if len(records) == 0 {
		result.Err = recerrors.New(recerrors.ErrorTypeNotFound, "revoke", req.Email, fmt.Errorf("no purchase found for this email"))
		return result
	}

	accountID := ClaimingAccount(records)
	if accountID == "" {
		result.Err = recerrors.New(recerrors.ErrorTypeNotFound, "revoke", req.Email, fmt.Errorf("email not verified with any account"))
		return result
	}

	if !c.catalog.Known(req.ProductID) {
		result.Err = recerrors.New(recerrors.ErrorTypeNotFound, "revoke", req.Email, fmt.Errorf("unknown product %q", req.ProductID))
		return result
	}

	var productRows []PurchaseRecord
	for _, record := range records {
		if record.ProductID == req.ProductID {
			productRows = append(productRows, record)
		}
	}
	if len(productRows) == 0 {
		result.Err = recerrors.New(recerrors.ErrorTypeNotFound, "revoke", req.Email, fmt.Errorf("no ledger row for product %q", req.ProductID))
		return result
	}

	refunded := false
	for _, record := range productRows {
		if record.PaymentStatus == StatusRefunded || record.PaymentStatus == StatusCancelled {
			refunded = true
			break
		}
	}
	if !refunded {
		result.Err = recerrors.New(recerrors.ErrorTypeValidation, "revoke", req.Email,
			fmt.Errorf("product %q is not refunded or cancelled", req.ProductID))
		return result
	}

	result.RolesRevoked = c.removeRoles(ctx, req, accountID, c.catalog.RolesFor(req.ProductID))

	// Bookkeeping: clear the verification flag on the revoked product's
	// rows. The ledger write is the source of truth and commits even when
	// directory calls were refused.
	for _, record := range productRows {
		if err := c.ledger.UpdateVerification(ctx, record.Row, record.AccountID, record.DisplayName, false); err != nil {
			result.Err = recerrors.WrapTransient("update_verification", req.Email, err)
			return result
		}
	}

	c.bestEffortDM(ctx, req, accountID,
		"Your subscription has been cancelled and the matching roles were removed. Thanks for being a subscriber, and feel free to rejoin anytime.")
	return result
}

// remove is revoke's role removal plus a forced detach from the directory.
func (c *Coordinator) remove(ctx context.Context, req Request) Result {
	result := Result{Request: req}

	records, err := c.ledger.FindRows(ctx, req.Email)
	if err != nil {
		result.Err = recerrors.WrapTransient("find_rows", req.Email, err)
		return result
	}
	if len(records) == 0 {
		result.Err = recerrors.New(recerrors.ErrorTypeNotFound, "remove", req.Email, fmt.Errorf("no purchase found for this email"))
		return result
	}

	accountID := ClaimingAccount(records)
	if accountID == "" {
		result.Err = recerrors.New(recerrors.ErrorTypeNotFound, "remove", req.Email, fmt.Errorf("email not verified with any account"))
		return result
	}

	if req.ProductID != "" {
		result.RolesRevoked = c.removeRoles(ctx, req, accountID, c.catalog.RolesFor(req.ProductID))
	}

	if err := c.directory.RemoveMember(ctx, accountID, "subscription cancelled"); err != nil {
		c.logDirectoryFailure(req, "remove_member", err)
	} else {
		result.Removed = true
	}

	for _, record := range records {
		if err := c.ledger.UpdateVerification(ctx, record.Row, record.AccountID, record.DisplayName, false); err != nil {
			result.Err = recerrors.WrapTransient("update_verification", req.Email, err)
			return result
		}
	}
	return result
}

// ensureRoles grants every role in names the member does not already hold.
// Directory refusals are logged and swallowed; the ledger remains the source
// of truth and the grant can be retried by re-verifying.
func (c *Coordinator) ensureRoles(ctx context.Context, req Request, accountID string, names []string) []string {
	held := make(map[string]bool)
	if ids, err := c.directory.MemberRoleIDs(ctx, accountID); err != nil {
		c.logDirectoryFailure(req, "member_roles", err)
	} else {
		for _, id := range ids {
			held[id] = true
		}
	}

	var granted []string
	for _, name := range names {
		role, err := c.lookupOrCreateRole(ctx, req, name)
		if err != nil || role == nil {
			continue
		}
		if held[role.ID] {
			continue
		}
		if err := c.directory.GrantRole(ctx, accountID, *role); err != nil {
			c.logDirectoryFailure(req, "grant_role", err)
			continue
		}
		c.metrics.RoleGranted()
		granted = append(granted, name)
	}
	return granted
}

// removeRoles revokes the named roles from the member. Roles missing from
// the directory are skipped.
func (c *Coordinator) removeRoles(ctx context.Context, req Request, accountID string, names []string) []string {
	var revoked []string
	for _, name := range names {
		role, err := c.directory.FindRole(ctx, name)
		if err != nil {
			c.logDirectoryFailure(req, "find_role", err)
			continue
		}
		if role == nil {
			continue
		}
		if err := c.directory.RevokeRole(ctx, accountID, *role); err != nil {
			c.logDirectoryFailure(req, "revoke_role", err)
			continue
		}
		c.metrics.RoleRevoked()
		revoked = append(revoked, name)
	}
	return revoked
}

func (c *Coordinator) lookupOrCreateRole(ctx context.Context, req Request, name string) (*directory.Role, error) {
	role, err := c.directory.FindRole(ctx, name)
	if err != nil {
		c.logDirectoryFailure(req, "find_role", err)
		return nil, err
	}
	if role != nil {
		return role, nil
	}
	role, err = c.directory.CreateRole(ctx, name)
	if err != nil {
		c.logDirectoryFailure(req, "create_role", err)
		return nil, err
	}
	return role, nil
}

func (c *Coordinator) bestEffortDM(ctx context.Context, req Request, accountID, text string) {
	if err := c.directory.DirectMessage(ctx, accountID, text); err != nil {
		log.Debug().Err(err).Str("email", req.Email).Str("member", accountID).Msg("Could not DM member")
	}
}

func (c *Coordinator) logDirectoryFailure(req Request, op string, err error) {
	event := log.Warn()
	if recerrors.IsPermissionError(err) {
		event = log.Info()
	}
	event.Err(err).
		Str("requestID", req.ID).
		Str("email", req.Email).
		Str("op", op).
		Msg("Directory call failed, continuing")
}
