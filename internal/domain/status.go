package domain

// Assignment statuses.
const (
	AssignmentPending    = "pending"
	AssignmentInProgress = "in_progress"
	AssignmentDone       = "done"
	AssignmentLate       = "late"
)

// Reward types an assignment can grant on submission.
const (
	RewardXP     = "xp"
	RewardTrophy = "trophy"
	RewardMem    = "mem"
)

// Invoice statuses.
const (
	InvoiceIssued    = "issued"
	InvoicePaid      = "paid"
	InvoiceOverdue   = "overdue"
	InvoiceCancelled = "cancelled"
)

// Avatar themes a student can pick.
const (
	AvatarWarrior  = "warrior"
	AvatarMage     = "mage"
	AvatarExplorer = "explorer"
)

// Payment methods.
const (
	PaymentCash     = "cash"
	PaymentCard     = "card"
	PaymentTransfer = "transfer"
	PaymentOnline   = "online"
)

// assignmentTransitions lists the legal moves of the assignment state machine.
// done is terminal.
var assignmentTransitions = map[string][]string{
	AssignmentPending:    {AssignmentInProgress, AssignmentDone, AssignmentLate},
	AssignmentInProgress: {AssignmentDone, AssignmentLate},
	AssignmentLate:       {AssignmentInProgress, AssignmentDone},
}

// CanTransition reports whether an assignment may move from one status to another.
func CanTransition(from, to string) bool {
	for _, s := range assignmentTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ValidAssignmentStatus reports whether s is a known assignment status.
func ValidAssignmentStatus(s string) bool {
	switch s {
	case AssignmentPending, AssignmentInProgress, AssignmentDone, AssignmentLate:
		return true
	}
	return false
}

// ValidRewardType reports whether s is a known reward type.
func ValidRewardType(s string) bool {
	switch s {
	case RewardXP, RewardTrophy, RewardMem:
		return true
	}
	return false
}

// RewardPoints returns the progress points granted for a reward type.
// Unknown types fall back to the xp value.
func RewardPoints(rewardType string) int {
	switch rewardType {
	case RewardTrophy:
		return 50
	case RewardMem:
		return 20
	default:
		return 10
	}
}

// PointsPerLevel is the number of progress points that make up one level.
const PointsPerLevel = 100

// ApplyPoints adds points to a student's progress and levels them up for
// every full PointsPerLevel accumulated.
func ApplyPoints(level, progress, points int) (newLevel, newProgress int) {
	if level < 1 {
		level = 1
	}
	progress += points
	for progress >= PointsPerLevel {
		level++
		progress -= PointsPerLevel
	}
	return level, progress
}

// InvoicePayable reports whether an invoice in status s can still be settled.
func InvoicePayable(s string) bool {
	return s == InvoiceIssued || s == InvoiceOverdue
}

// ValidPaymentMethod reports whether m is an accepted payment method.
func ValidPaymentMethod(m string) bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentTransfer, PaymentOnline:
		return true
	}
	return false
}

// ValidAvatarTheme reports whether code names a known avatar theme.
func ValidAvatarTheme(code string) bool {
	switch code {
	case AvatarWarrior, AvatarMage, AvatarExplorer:
		return true
	}
	return false
}
