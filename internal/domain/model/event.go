package model

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// EventSource identifies this service on the bus.
const EventSource = "grade-management-service"

// Event types produced and consumed by the service.
const (
	EventGradeCreated   = "grade.created"
	EventGradeUpdated   = "grade.updated"
	EventGradeDeleted   = "grade.deleted"
	EventStudentCreated = "student.created"
	EventStudentUpdated = "student.updated"
	EventStudentDeleted = "student.deleted"
	EventTeacherCreated = "teacher.created"
)

// Event is the platform-wide message envelope.
type Event struct {
	EventID   string         `json:"eventId"`
	EventType string         `json:"eventType"`
	Source    string         `json:"source"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewEvent builds an envelope with a fresh id and timestamp.
func NewEvent(eventType string, data map[string]any, now time.Time) Event {
	return Event{
		EventID:   uuid.NewString(),
		EventType: eventType,
		Source:    EventSource,
		Timestamp: now.UTC(),
		Data:      data,
	}
}

// Message is an event addressed to a topic, ready for publishing.
type Message struct {
	Topic string
	Key   string
	Event Event
}

// GradeCreatedEvent carries the fields consumers need about a new grade.
func GradeCreatedEvent(g *Grade, now time.Time) Event {
	return NewEvent(EventGradeCreated, map[string]any{
		"gradeId":          g.ID,
		"studentId":        g.StudentID,
		"teacherId":        g.TeacherID,
		"evaluationId":     g.EvaluationID,
		"gradeValue":       valueString(g),
		"academicYear":     g.AcademicYear,
		"academicSemester": g.AcademicSemester,
	}, now)
}

// GradeUpdatedEvent carries the mutable fields of an updated grade.
func GradeUpdatedEvent(g *Grade, now time.Time) Event {
	return NewEvent(EventGradeUpdated, map[string]any{
		"gradeId":    g.ID,
		"studentId":  g.StudentID,
		"gradeValue": valueString(g),
		"status":     string(g.Status),
	}, now)
}

// GradeDeletedEvent identifies a soft-deleted grade.
func GradeDeletedEvent(g *Grade, now time.Time) Event {
	return NewEvent(EventGradeDeleted, map[string]any{
		"gradeId":      g.ID,
		"studentId":    g.StudentID,
		"evaluationId": g.EvaluationID,
	}, now)
}

func valueString(g *Grade) any {
	if g.Value == nil {
		return nil
	}
	return g.Value.StringFixed(2)
}

// Int64Field reads a numeric id out of event data. JSON numbers decode as
// float64 and some producers send ids as strings.
func (e Event) Int64Field(key string) (int64, bool) {
	v, ok := e.Data[key]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case string:
		out, err := strconv.ParseInt(n, 10, 64)
		return out, err == nil
	}
	return 0, false
}

// Int64Key formats an id as a partition key.
func Int64Key(id int64) string {
	return strconv.FormatInt(id, 10)
}
