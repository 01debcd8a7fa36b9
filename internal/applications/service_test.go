package applications

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"edistrict/certificate-portal/portal-backend/internal/certificates"
	"edistrict/certificate-portal/portal-backend/pkg/security"
	"edistrict/certificate-portal/portal-backend/pkg/workflows"
)

type fixedTrackSource struct {
	track workflows.Track
}

func (f fixedTrackSource) ActiveTrack(context.Context) workflows.Track { return f.track }

type recordingNotifier struct {
	mu      sync.Mutex
	changes []StatusChange
}

func (n *recordingNotifier) NotifyStatusChange(_ context.Context, change StatusChange) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changes = append(n.changes, change)
}

type fixture struct {
	service  Service
	repo     *MemoryRepository
	certs    *certificates.MemoryStore
	notifier *recordingNotifier
}

func newFixture(t *testing.T, track workflows.Track) *fixture {
	t.Helper()
	certs := certificates.NewMemoryStore()
	repo := NewMemoryRepository(certs)
	notifier := &recordingNotifier{}
	issuer := certificates.NewIssuer(security.NewTokenSigner("test-signing-key"))
	svc := NewService(repo, issuer, notifier, fixedTrackSource{track: track}, 5*time.Second, zap.NewNop())
	return &fixture{service: svc, repo: repo, certs: certs, notifier: notifier}
}

func validSubmit(owner uuid.UUID) SubmitRequest {
	return SubmitRequest{
		OwnerID:         owner,
		CertificateType: "caste",
		FullName:        "Ramesh Kumar",
		FatherName:      "Suresh Kumar",
		DateOfBirth:     "1994-03-12",
		Address:         "12 Gandhi Road, Raipur",
		PhoneNumber:     "+91 98765 43210",
		Email:           "ramesh.kumar@example.com",
		Purpose:         "College admission",
	}
}

func actorWith(roles ...workflows.Role) Actor {
	return Actor{ID: uuid.New(), Roles: roles}
}

func TestSubmit(t *testing.T) {
	fx := newFixture(t, workflows.TrackStandard)
	owner := uuid.New()

	app, err := fx.service.Submit(context.Background(), validSubmit(owner))
	require.NoError(t, err)

	assert.Equal(t, workflows.StatusPending, app.Status)
	assert.Equal(t, workflows.TrackStandard, app.VerificationTrack)
	assert.Equal(t, owner, app.OwnerID)
	assert.Regexp(t, `^CERT\d{4}-[0-9A-Z]{8}$`, app.ApplicationID)
	// The country code is stripped during normalization.
	assert.Equal(t, "9876543210", app.PhoneNumber)
}

func TestSubmitValidation(t *testing.T) {
	fx := newFixture(t, workflows.TrackStandard)
	owner := uuid.New()

	tests := []struct {
		name   string
		mutate func(*SubmitRequest)
		field  string
	}{
		{"unknown certificate type", func(r *SubmitRequest) { r.CertificateType = "passport" }, "certificate_type"},
		{"blank full name", func(r *SubmitRequest) { r.FullName = "  " }, "full_name"},
		{"blank purpose", func(r *SubmitRequest) { r.Purpose = "" }, "purpose"},
		{"short phone number", func(r *SubmitRequest) { r.PhoneNumber = "12345" }, "phone_number"},
		{"malformed email", func(r *SubmitRequest) { r.Email = "not-an-email" }, "email"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := validSubmit(owner)
			tc.mutate(&req)
			_, err := fx.service.Submit(context.Background(), req)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
		})
	}
}

func TestSubmitSnapshotsActiveTrack(t *testing.T) {
	fx := newFixture(t, workflows.TrackTiered)

	app, err := fx.service.Submit(context.Background(), validSubmit(uuid.New()))
	require.NoError(t, err)
	assert.Equal(t, workflows.TrackTiered, app.VerificationTrack)
}

func TestListScopesCitizensToOwnApplications(t *testing.T) {
	fx := newFixture(t, workflows.TrackStandard)
	ownerA := uuid.New()
	ownerB := uuid.New()

	_, err := fx.service.Submit(context.Background(), validSubmit(ownerA))
	require.NoError(t, err)
	_, err = fx.service.Submit(context.Background(), validSubmit(ownerB))
	require.NoError(t, err)

	citizen := Actor{ID: ownerA, Roles: []workflows.Role{workflows.RoleCitizen}}
	mine, err := fx.service.List(context.Background(), citizen, nil)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, ownerA, mine[0].OwnerID)
	assert.Equal(t, workflows.StatusPending, mine[0].Status)

	clerk := actorWith(workflows.RoleClerk)
	all, err := fx.service.List(context.Background(), clerk, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestGetHidesOthersApplicationsFromCitizens(t *testing.T) {
	fx := newFixture(t, workflows.TrackStandard)

	app, err := fx.service.Submit(context.Background(), validSubmit(uuid.New()))
	require.NoError(t, err)

	stranger := actorWith(workflows.RoleCitizen)
	_, err = fx.service.Get(context.Background(), app.ID, stranger)
	assert.ErrorIs(t, err, ErrNotFound)

	clerk := actorWith(workflows.RoleClerk)
	got, err := fx.service.Get(context.Background(), app.ID, clerk)
	require.NoError(t, err)
	assert.Equal(t, app.ID, got.ID)
}

func TestClerkAdvancesPendingApplication(t *testing.T) {
	fx := newFixture(t, workflows.TrackStandard)

	req := validSubmit(uuid.New())
	req.CertificateType = "income"
	req.PhoneNumber = "9876543210"
	app, err := fx.service.Submit(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, workflows.StatusPending, app.Status)

	clerk := actorWith(workflows.RoleClerk)
	updated, err := fx.service.Transition(context.Background(), TransitionRequest{
		ApplicationID: app.ID,
		Destination:   workflows.StatusDocumentVerification,
		Actor:         clerk,
	})
	require.NoError(t, err)
	assert.Equal(t, workflows.StatusDocumentVerification, updated.Status)

	entries, err := fx.service.AuditTrail(context.Background(), app.ID, clerk)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, workflows.StatusPending, entries[0].FromStatus)
	assert.Equal(t, workflows.StatusDocumentVerification, entries[0].ToStatus)
	assert.Equal(t, clerk.ID, entries[0].ActorID)
	assert.Equal(t, workflows.RoleClerk, entries[0].ActorRole)
	assert.False(t, entries[0].CreatedAt.Before(app.CreatedAt))

	// Clerks verify documents; only the SDO decides approval.
	_, err = fx.service.Transition(context.Background(), TransitionRequest{
		ApplicationID: app.ID,
		Destination:   workflows.StatusApproved,
		Actor:         clerk,
	})
	var terr *InvalidTransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, workflows.StatusDocumentVerification, terr.From)

	unchanged, err := fx.service.Get(context.Background(), app.ID, clerk)
	require.NoError(t, err)
	assert.Equal(t, workflows.StatusDocumentVerification, unchanged.Status)
}

func TestClerkCannotApproveDirectly(t *testing.T) {
	fx := newFixture(t, workflows.TrackStandard)

	app, err := fx.service.Submit(context.Background(), validSubmit(uuid.New()))
	require.NoError(t, err)

	_, err = fx.service.Transition(context.Background(), TransitionRequest{
		ApplicationID: app.ID,
		Destination:   workflows.StatusApproved,
		Actor:         actorWith(workflows.RoleClerk),
	})
	var terr *InvalidTransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, workflows.StatusPending, terr.From)
	assert.Equal(t, workflows.StatusApproved, terr.To)
}

func TestRejectionRequiresReason(t *testing.T) {
	fx := newFixture(t, workflows.TrackStandard)

	app := advanceToAwaitingSDO(t, fx)

	_, err := fx.service.Transition(context.Background(), TransitionRequest{
		ApplicationID: app.ID,
		Destination:   workflows.StatusRejected,
		Actor:         actorWith(workflows.RoleSDO),
		Reason:        "   ",
	})
	var merr *MissingReasonError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, workflows.StatusRejected, merr.To)

	rejected, err := fx.service.Transition(context.Background(), TransitionRequest{
		ApplicationID: app.ID,
		Destination:   workflows.StatusRejected,
		Actor:         actorWith(workflows.RoleSDO),
		Reason:        "Income proof does not match declared income",
	})
	require.NoError(t, err)
	assert.Equal(t, workflows.StatusRejected, rejected.Status)
	require.NotNil(t, rejected.RejectionReason)
	assert.Equal(t, "Income proof does not match declared income", *rejected.RejectionReason)
}

func TestSDORejectsBeforeReviewCompletes(t *testing.T) {
	fx := newFixture(t, workflows.TrackStandard)

	app, err := fx.service.Submit(context.Background(), validSubmit(uuid.New()))
	require.NoError(t, err)

	// A deciding officer may reject at any stage, including straight from
	// pending.
	rejected, err := fx.service.Transition(context.Background(), TransitionRequest{
		ApplicationID: app.ID,
		Destination:   workflows.StatusRejected,
		Actor:         actorWith(workflows.RoleSDO),
		Reason:        "Application duplicates an already-issued certificate",
	})
	require.NoError(t, err)
	assert.Equal(t, workflows.StatusRejected, rejected.Status)
	require.NotNil(t, rejected.RejectionReason)

	assert.Equal(t, 0, fx.certs.Count())
}

func TestApprovalIssuesCertificate(t *testing.T) {
	fx := newFixture(t, workflows.TrackStandard)

	app := advanceToAwaitingSDO(t, fx)

	approved, err := fx.service.Transition(context.Background(), TransitionRequest{
		ApplicationID: app.ID,
		Destination:   workflows.StatusApproved,
		Actor:         actorWith(workflows.RoleSDO),
	})
	require.NoError(t, err)
	assert.Equal(t, workflows.StatusApproved, approved.Status)

	cert, err := fx.certs.GetByApplicationID(context.Background(), app.ID)
	require.NoError(t, err)
	assert.Regexp(t, `^GC\d{4}-[0-9A-Z]{10}$`, cert.CertificateNumber)
	assert.Equal(t, app.FullName, cert.IssuedTo)
	assert.Equal(t, app.ApplicationID, cert.ApplicationCode)
	assert.Nil(t, cert.ValidUntil)
}

func TestAdditionalInfoRoundTrip(t *testing.T) {
	fx := newFixture(t, workflows.TrackStandard)
	owner := uuid.New()

	req := validSubmit(owner)
	app, err := fx.service.Submit(context.Background(), req)
	require.NoError(t, err)

	clerk := actorWith(workflows.RoleClerk)
	_, err = fx.service.Transition(context.Background(), TransitionRequest{
		ApplicationID: app.ID,
		Destination:   workflows.StatusDocumentVerification,
		Actor:         clerk,
	})
	require.NoError(t, err)

	flagged, err := fx.service.Transition(context.Background(), TransitionRequest{
		ApplicationID: app.ID,
		Destination:   workflows.StatusAdditionalInfoNeeded,
		Actor:         clerk,
		Reason:        "Address proof is illegible",
	})
	require.NoError(t, err)
	assert.Equal(t, workflows.StatusAdditionalInfoNeeded, flagged.Status)
	require.NotNil(t, flagged.InfoRequested)
	assert.Equal(t, "Address proof is illegible", *flagged.InfoRequested)

	// A stranger cannot answer someone else's information request.
	_, err = fx.service.Resubmit(context.Background(), ResubmitRequest{
		ApplicationID:  app.ID,
		Actor:          actorWith(workflows.RoleCitizen),
		AdditionalInfo: "Re-uploaded address proof",
	})
	assert.ErrorIs(t, err, ErrNotFound)

	resumed, err := fx.service.Resubmit(context.Background(), ResubmitRequest{
		ApplicationID:  app.ID,
		Actor:          Actor{ID: owner, Roles: []workflows.Role{workflows.RoleCitizen}},
		AdditionalInfo: "Re-uploaded address proof",
	})
	require.NoError(t, err)
	// The application resumes from the state the request was raised in.
	assert.Equal(t, workflows.StatusDocumentVerification, resumed.Status)
	assert.Nil(t, resumed.InfoRequested)
	require.NotNil(t, resumed.AdditionalInfo)
	assert.Equal(t, "Re-uploaded address proof", *resumed.AdditionalInfo)
}

func TestTerminalStatesRejectFurtherTransitions(t *testing.T) {
	fx := newFixture(t, workflows.TrackStandard)

	app := advanceToAwaitingSDO(t, fx)
	sdo := actorWith(workflows.RoleSDO)

	_, err := fx.service.Transition(context.Background(), TransitionRequest{
		ApplicationID: app.ID,
		Destination:   workflows.StatusApproved,
		Actor:         sdo,
	})
	require.NoError(t, err)

	_, err = fx.service.Transition(context.Background(), TransitionRequest{
		ApplicationID: app.ID,
		Destination:   workflows.StatusRejected,
		Actor:         sdo,
		Reason:        "changed my mind",
	})
	var terr *InvalidTransitionError
	assert.ErrorAs(t, err, &terr)
}

func TestConcurrentApprovalIssuesExactlyOneCertificate(t *testing.T) {
	fx := newFixture(t, workflows.TrackStandard)

	app := advanceToAwaitingSDO(t, fx)

	const approvers = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0

	wg.Add(approvers)
	for i := 0; i < approvers; i++ {
		go func() {
			defer wg.Done()
			_, err := fx.service.Transition(context.Background(), TransitionRequest{
				ApplicationID: app.ID,
				Destination:   workflows.StatusApproved,
				Actor:         actorWith(workflows.RoleSDO),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrConcurrentModification):
				// Lost the compare-and-swap.
			case isInvalidTransition(err):
				// Loaded the record after the winner committed.
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, fx.certs.Count())
}

func TestUpdateDraftOnlyWhilePending(t *testing.T) {
	fx := newFixture(t, workflows.TrackStandard)
	owner := uuid.New()

	app, err := fx.service.Submit(context.Background(), validSubmit(owner))
	require.NoError(t, err)

	citizen := Actor{ID: owner, Roles: []workflows.Role{workflows.RoleCitizen}}
	edit := UpdateDraftRequest{
		ApplicationID: app.ID,
		Actor:         citizen,
		FullName:      "Ramesh K Kumar",
		FatherName:    "Suresh Kumar",
		DateOfBirth:   "1994-03-12",
		Address:       "14 Gandhi Road, Raipur",
		PhoneNumber:   "9876543210",
		Email:         "ramesh.kumar@example.com",
		Purpose:       "College admission",
	}

	updated, err := fx.service.UpdateDraft(context.Background(), edit)
	require.NoError(t, err)
	assert.Equal(t, "Ramesh K Kumar", updated.FullName)
	assert.Equal(t, "14 Gandhi Road, Raipur", updated.Address)

	_, err = fx.service.Transition(context.Background(), TransitionRequest{
		ApplicationID: app.ID,
		Destination:   workflows.StatusDocumentVerification,
		Actor:         actorWith(workflows.RoleClerk),
	})
	require.NoError(t, err)

	_, err = fx.service.UpdateDraft(context.Background(), edit)
	var terr *InvalidTransitionError
	assert.ErrorAs(t, err, &terr)
}

func TestUpdateDraftRejectedAfterOfficialsActed(t *testing.T) {
	fx := newFixture(t, workflows.TrackStandard)
	owner := uuid.New()

	app, err := fx.service.Submit(context.Background(), validSubmit(owner))
	require.NoError(t, err)

	// Flag from pending and resubmit: status is pending again, but the
	// application now carries audit history.
	_, err = fx.service.Transition(context.Background(), TransitionRequest{
		ApplicationID: app.ID,
		Destination:   workflows.StatusAdditionalInfoNeeded,
		Actor:         actorWith(workflows.RoleClerk),
		Reason:        "Purpose statement is too vague",
	})
	require.NoError(t, err)

	resumed, err := fx.service.Resubmit(context.Background(), ResubmitRequest{
		ApplicationID:  app.ID,
		Actor:          Actor{ID: owner, Roles: []workflows.Role{workflows.RoleCitizen}},
		AdditionalInfo: "Certificate needed for scholarship application",
	})
	require.NoError(t, err)
	require.Equal(t, workflows.StatusPending, resumed.Status)

	_, err = fx.service.UpdateDraft(context.Background(), UpdateDraftRequest{
		ApplicationID: app.ID,
		Actor:         Actor{ID: owner, Roles: []workflows.Role{workflows.RoleCitizen}},
		FullName:      "Someone Else Entirely",
		FatherName:    "Suresh Kumar",
		DateOfBirth:   "1994-03-12",
		Address:       "12 Gandhi Road, Raipur",
		PhoneNumber:   "9876543210",
		Email:         "ramesh.kumar@example.com",
		Purpose:       "College admission",
	})
	var terr *InvalidTransitionError
	require.ErrorAs(t, err, &terr)

	unchanged, err := fx.service.Get(context.Background(), app.ID, Actor{ID: owner})
	require.NoError(t, err)
	assert.Equal(t, "Ramesh Kumar", unchanged.FullName)
}

func TestTieredTrackHappyPath(t *testing.T) {
	fx := newFixture(t, workflows.TrackTiered)

	app, err := fx.service.Submit(context.Background(), validSubmit(uuid.New()))
	require.NoError(t, err)

	steps := []struct {
		to    workflows.Status
		actor Actor
	}{
		{workflows.StatusVerificationLevel1, actorWith(workflows.RoleVerificationOfficer1)},
		{workflows.StatusVerificationLevel2, actorWith(workflows.RoleVerificationOfficer2)},
		{workflows.StatusVerificationLevel3, actorWith(workflows.RoleVerificationOfficer3)},
		{workflows.StatusStaffReview, actorWith(workflows.RoleStaffOfficer)},
		{workflows.StatusAwaitingSDO, actorWith(workflows.RoleStaffOfficer)},
		{workflows.StatusApproved, actorWith(workflows.RoleSDO)},
	}
	for _, step := range steps {
		app, err = fx.service.Transition(context.Background(), TransitionRequest{
			ApplicationID: app.ID,
			Destination:   step.to,
			Actor:         step.actor,
		})
		require.NoError(t, err, "transition to %s", step.to)
	}

	assert.Equal(t, workflows.StatusApproved, app.Status)
	assert.Equal(t, 1, fx.certs.Count())
}

func TestAllowedTransitionsReflectActorRoles(t *testing.T) {
	fx := newFixture(t, workflows.TrackStandard)
	owner := uuid.New()

	app, err := fx.service.Submit(context.Background(), validSubmit(owner))
	require.NoError(t, err)

	clerk := actorWith(workflows.RoleClerk)
	next, err := fx.service.AllowedTransitions(context.Background(), app.ID, clerk)
	require.NoError(t, err)
	assert.Contains(t, next, workflows.StatusDocumentVerification)
	assert.NotContains(t, next, workflows.StatusApproved)

	citizen := Actor{ID: owner, Roles: []workflows.Role{workflows.RoleCitizen}}
	none, err := fx.service.AllowedTransitions(context.Background(), app.ID, citizen)
	require.NoError(t, err)
	assert.Empty(t, none)
}

// stalledRepository blocks every read and write until the caller's deadline
// expires, simulating an unresponsive store.
type stalledRepository struct {
	Repository
}

func (stalledRepository) CreateApplication(ctx context.Context, _ *Application) error {
	<-ctx.Done()
	return ctx.Err()
}

func (stalledRepository) GetApplicationByID(ctx context.Context, _ uuid.UUID) (*Application, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestStoreTimeoutSurfacesAsUnavailable(t *testing.T) {
	certs := certificates.NewMemoryStore()
	repo := stalledRepository{Repository: NewMemoryRepository(certs)}
	issuer := certificates.NewIssuer(security.NewTokenSigner("test-signing-key"))
	svc := NewService(repo, issuer, nil, fixedTrackSource{track: workflows.TrackStandard}, 20*time.Millisecond, zap.NewNop())

	_, err := svc.Submit(context.Background(), validSubmit(uuid.New()))
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	_, err = svc.Transition(context.Background(), TransitionRequest{
		ApplicationID: uuid.New(),
		Destination:   workflows.StatusDocumentVerification,
		Actor:         actorWith(workflows.RoleClerk),
	})
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

// collidingRepository reports every generated application code as taken.
type collidingRepository struct {
	Repository
	attempts int
}

func (r *collidingRepository) CreateApplication(context.Context, *Application) error {
	r.attempts++
	return errDuplicateCode
}

func TestSubmitExhaustedCodeRetriesSurfaceAsUnavailable(t *testing.T) {
	repo := &collidingRepository{Repository: NewMemoryRepository(certificates.NewMemoryStore())}
	issuer := certificates.NewIssuer(security.NewTokenSigner("test-signing-key"))
	svc := NewService(repo, issuer, nil, fixedTrackSource{track: workflows.TrackStandard}, time.Second, zap.NewNop())

	_, err := svc.Submit(context.Background(), validSubmit(uuid.New()))
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Equal(t, codeRetries, repo.attempts)
}

func isInvalidTransition(err error) bool {
	var terr *InvalidTransitionError
	return errors.As(err, &terr)
}

// advanceToAwaitingSDO submits a standard-track application and walks it to
// the awaiting_sdo stage.
func advanceToAwaitingSDO(t *testing.T, fx *fixture) *Application {
	t.Helper()

	app, err := fx.service.Submit(context.Background(), validSubmit(uuid.New()))
	require.NoError(t, err)

	steps := []struct {
		to    workflows.Status
		actor Actor
	}{
		{workflows.StatusDocumentVerification, actorWith(workflows.RoleClerk)},
		{workflows.StatusStaffReview, actorWith(workflows.RoleStaffOfficer)},
		{workflows.StatusAwaitingSDO, actorWith(workflows.RoleStaffOfficer)},
	}
	for _, step := range steps {
		app, err = fx.service.Transition(context.Background(), TransitionRequest{
			ApplicationID: app.ID,
			Destination:   step.to,
			Actor:         step.actor,
		})
		require.NoError(t, err, "transition to %s", step.to)
	}
	return app
}
