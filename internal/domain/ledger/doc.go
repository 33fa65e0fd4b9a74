// Package ledger contains the point penalty/bonus ledger of the tutoring platform.
//
// This is the core of the business logic. The package has no I/O and no hidden
// state: every operation takes a StudentProfile value and returns a new one.
//
//   - Penalty Calculator: CalculatePenalty maps (balance, type, offense count) to a deduction
//   - Bonus Calculator: CreateBonusRecord and RunAutomaticBonusChecks
//   - Ledger Applier: Ledger.ApplyPenalty, Ledger.ApplyBonus, Ledger.WaivePenalty
//   - Risk model: AssessRisk and TotalPenaltiesInPeriod
//
// # Configuration
//
// Rules are passed in explicitly as a Config value:
//
//	l := ledger.New(ledger.DefaultConfig())
//	updated, penalty := l.ApplyPenalty(student, ledger.PenaltyLateHomework, ledger.ActorTutor, "")
//
// # Concurrency
//
// Nothing in this package locks. Callers that persist the returned profile must
// serialize writes per student; the repository contract does this with the
// optimistic Version token carried by StudentProfile.
package ledger
