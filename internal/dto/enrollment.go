package dto

// EnrollRequest is the body of POST /enrollments. Students may omit student_id.
type EnrollRequest struct {
	StudentID string `json:"student_id"`
	CourseID  string `json:"course_id" binding:"required"`
	Source    string `json:"source"`
}

// PaymentCompletedRequest is sent by the payment processor once a charge settles.
type PaymentCompletedRequest struct {
	PaymentID string `json:"payment_id" binding:"required"`
	StudentID string `json:"student_id" binding:"required"`
	CourseID  string `json:"course_id" binding:"required"`
}
