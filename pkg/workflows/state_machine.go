package workflows

import "fmt"

// Status is an application lifecycle state.
type Status string

const (
	StatusPending              Status = "pending"
	StatusDocumentVerification Status = "document_verification"
	StatusVerificationLevel1   Status = "verification_level_1"
	StatusVerificationLevel2   Status = "verification_level_2"
	StatusVerificationLevel3   Status = "verification_level_3"
	StatusStaffReview          Status = "staff_review"
	StatusAwaitingSDO          Status = "awaiting_sdo"
	StatusApproved             Status = "approved"
	StatusRejected             Status = "rejected"
	StatusAdditionalInfoNeeded Status = "additional_info_needed"
)

// Role is an authorization tag carried in the actor's token.
type Role string

const (
	RoleCitizen              Role = "citizen"
	RoleClerk                Role = "clerk"
	RoleVerificationOfficer1 Role = "verification_officer_1"
	RoleVerificationOfficer2 Role = "verification_officer_2"
	RoleVerificationOfficer3 Role = "verification_officer_3"
	RoleStaffOfficer         Role = "staff_officer"
	RoleSDO                  Role = "sdo"
	RoleAdmin                Role = "admin"
)

// Track selects which verification staging variant an application follows.
type Track string

const (
	// TrackStandard routes document checks through a single clerk stage.
	TrackStandard Track = "standard"
	// TrackTiered routes document checks through three officer levels.
	TrackTiered Track = "tiered"
)

// ParseStatus converts a raw string to a Status, returning an error for
// unknown values.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	switch st {
	case StatusPending, StatusDocumentVerification,
		StatusVerificationLevel1, StatusVerificationLevel2, StatusVerificationLevel3,
		StatusStaffReview, StatusAwaitingSDO,
		StatusApproved, StatusRejected, StatusAdditionalInfoNeeded:
		return st, nil
	}
	return "", fmt.Errorf("unknown application status %q", s)
}

// ParseTrack converts a raw string to a Track.
func ParseTrack(s string) (Track, error) {
	t := Track(s)
	switch t {
	case TrackStandard, TrackTiered:
		return t, nil
	}
	return "", fmt.Errorf("unknown verification track %q", s)
}

// IsTerminal reports whether st has no outgoing transitions.
func IsTerminal(st Status) bool {
	return st == StatusApproved || st == StatusRejected
}

// RequiresReason reports whether a transition into st must carry reason text.
func RequiresReason(st Status) bool {
	return st == StatusRejected || st == StatusAdditionalInfoNeeded
}

// edge is one allowed (from -> to) pair and the roles permitted to drive it.
type edge struct {
	from  Status
	to    Status
	roles []Role
}

// reviewRoles may flag any in-flight application as needing more information.
var reviewRoles = []Role{
	RoleClerk,
	RoleVerificationOfficer1, RoleVerificationOfficer2, RoleVerificationOfficer3,
	RoleStaffOfficer, RoleSDO, RoleAdmin,
}

// decisionRoles may reject an in-flight application at any stage, not just
// from awaiting_sdo.
var decisionRoles = []Role{RoleSDO, RoleAdmin}

var standardEdges = []edge{
	{StatusPending, StatusDocumentVerification, []Role{RoleClerk, RoleVerificationOfficer1}},
	{StatusDocumentVerification, StatusStaffReview, []Role{RoleStaffOfficer}},
	{StatusStaffReview, StatusAwaitingSDO, []Role{RoleStaffOfficer}},
	{StatusAwaitingSDO, StatusApproved, []Role{RoleSDO, RoleAdmin}},
}

var tieredEdges = []edge{
	{StatusPending, StatusVerificationLevel1, []Role{RoleClerk, RoleVerificationOfficer1}},
	{StatusVerificationLevel1, StatusVerificationLevel2, []Role{RoleVerificationOfficer2}},
	{StatusVerificationLevel2, StatusVerificationLevel3, []Role{RoleVerificationOfficer3}},
	{StatusVerificationLevel3, StatusStaffReview, []Role{RoleStaffOfficer}},
	{StatusStaffReview, StatusAwaitingSDO, []Role{RoleStaffOfficer}},
	{StatusAwaitingSDO, StatusApproved, []Role{RoleSDO, RoleAdmin}},
}

// StateMachine enforces role-gated application status transitions for both
// verification tracks.
type StateMachine struct {
	edges map[Track][]edge
}

// NewStateMachine creates a state machine with the full transition table.
func NewStateMachine() *StateMachine {
	return &StateMachine{
		edges: map[Track][]edge{
			TrackStandard: standardEdges,
			TrackTiered:   tieredEdges,
		},
	}
}

// States returns every status reachable on the given track, in workflow order.
func (sm *StateMachine) States(track Track) []Status {
	if track == TrackTiered {
		return []Status{
			StatusPending,
			StatusVerificationLevel1, StatusVerificationLevel2, StatusVerificationLevel3,
			StatusStaffReview, StatusAwaitingSDO,
			StatusApproved, StatusRejected, StatusAdditionalInfoNeeded,
		}
	}
	return []Status{
		StatusPending, StatusDocumentVerification,
		StatusStaffReview, StatusAwaitingSDO,
		StatusApproved, StatusRejected, StatusAdditionalInfoNeeded,
	}
}

// OnTrack reports whether st is a member of the track's state set.
func (sm *StateMachine) OnTrack(track Track, st Status) bool {
	for _, s := range sm.States(track) {
		if s == st {
			return true
		}
	}
	return false
}

// CanTransition reports whether any of the actor's roles may move an
// application on the given track from one status to another. Rejection and
// additional_info_needed are from-anywhere edges rather than table rows. The
// additional_info_needed re-entry edge is not covered here: resubmission is a
// citizen action handled separately because its destination depends on the
// state the request was raised from.
func (sm *StateMachine) CanTransition(track Track, from, to Status, roles []Role) bool {
	if IsTerminal(from) {
		return false
	}
	if to == StatusRejected {
		return hasAnyRole(roles, decisionRoles)
	}
	if to == StatusAdditionalInfoNeeded {
		return from != StatusAdditionalInfoNeeded && hasAnyRole(roles, reviewRoles)
	}
	for _, e := range sm.edges[track] {
		if e.from == from && e.to == to {
			return hasAnyRole(roles, e.roles)
		}
	}
	return false
}

// AllowedTransitions returns the destinations the actor's roles may drive
// from the given status on the given track.
func (sm *StateMachine) AllowedTransitions(track Track, from Status, roles []Role) []Status {
	if IsTerminal(from) {
		return nil
	}
	var out []Status
	for _, e := range sm.edges[track] {
		if e.from == from && hasAnyRole(roles, e.roles) {
			out = append(out, e.to)
		}
	}
	if hasAnyRole(roles, decisionRoles) {
		out = append(out, StatusRejected)
	}
	if from != StatusAdditionalInfoNeeded && hasAnyRole(roles, reviewRoles) {
		out = append(out, StatusAdditionalInfoNeeded)
	}
	return out
}

func hasAnyRole(have, want []Role) bool {
	for _, h := range have {
		for _, w := range want {
			if h == w {
				return true
			}
		}
	}
	return false
}
