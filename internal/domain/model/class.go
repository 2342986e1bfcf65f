package model

// ClassInfo is the class directory's view of a class and its roster.
// StudentIDs may be nil when the roster is unknown.
type ClassInfo struct {
	ID              int64
	Name            string
	Code            string
	AcademicYear    string
	Period          string
	Capacity        int
	CurrentStudents int
	Room            string
	Active          bool
	StudentIDs      []int64
	TeacherIDs      []int64
}

// HasStudent reports whether id is on a non-empty roster.
// An empty roster admits every student.
func (c ClassInfo) HasStudent(id int64) bool {
	if len(c.StudentIDs) == 0 {
		return true
	}
	for _, s := range c.StudentIDs {
		if s == id {
			return true
		}
	}
	return false
}
