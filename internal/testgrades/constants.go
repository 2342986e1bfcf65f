package testgrades

// Submission outcomes.
const (
	resultSuccess  = "success"
	resultConflict = "conflict"
	resultFailed   = "failed"
)

// Worker configuration constants.
const (
	WorkerChannelMultiplier = 2
	PercentageMultiplier    = 100
)

// Id layout inside one run: classes, students and evaluations never share
// a range, so repeated runs against one database do not collide.
const (
	idBaseStride      = 1_000_000
	teacherIDOffset   = 1
	studentIDOffset   = 1_000
	evaluationOffset  = 500_000
	apiPrefix         = "/api/v1"
	dateLayout        = "2006-01-02"
	maxGradeTenths    = 100
	defaultGradeNotes = "load test"
)
