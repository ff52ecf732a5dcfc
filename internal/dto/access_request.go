package dto

// CreateAccessRequestRequest is the body of POST /access-requests.
type CreateAccessRequestRequest struct {
	CourseID string `json:"course_id" binding:"required"`
	Reason   string `json:"reason"`
}

// ReviewAccessRequestRequest is the optional body of approve and reject.
type ReviewAccessRequestRequest struct {
	Reason string `json:"reason"`
}

// AccessRequestQuery holds list filters.
type AccessRequestQuery struct {
	Status    string `form:"status"`
	StudentID string `form:"student_id"`
	CourseID  string `form:"course_id"`
	Page      int    `form:"page"`
	PageSize  int    `form:"page_size"`
}
