package entitlement

// ClaimStatus is the identity guard's verdict on a verification attempt.
type ClaimStatus string

const (
	// Claimable means no conflicting claim exists; the requester may verify.
	Claimable ClaimStatus = "claimable"
	// AlreadyClaimedBySelf means the requester already owns this email's
	// verification. Repeat verification is an idempotent re-grant.
	AlreadyClaimedBySelf ClaimStatus = "already_claimed_by_self"
	// AlreadyClaimedByOther means a different account holds a verified claim
	// on this email. The attempt must be rejected without mutating the
	// ledger.
	AlreadyClaimedByOther ClaimStatus = "already_claimed_by_other"
)

// CheckClaim enforces the one-email-to-one-account invariant. It is a pure
// decision over the latest ledger snapshot for the email; it never consults
// prior decisions because the ledger can be corrected externally between
// requests. Verification is first-come and exclusive per email.
func CheckClaim(records []PurchaseRecord, requestingAccountID string) ClaimStatus {
	for _, record := range records {
		if !record.Verified || record.AccountID == "" {
			continue
		}
		if record.AccountID == requestingAccountID {
			return AlreadyClaimedBySelf
		}
		return AlreadyClaimedByOther
	}
	return Claimable
}
