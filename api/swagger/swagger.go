package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Enrollment Sync API",
        "description": "Enrollment consistency and synchronization engine",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http",
        "https"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "security": [{"BearerAuth": []}],
    "tags": [
        {"name": "Enrollments", "description": "Idempotent enrollment entry points"},
        {"name": "AccessRequests", "description": "Admin-approved course access"},
        {"name": "Consistency", "description": "Divergence audit, repair and orphan cleanup"}
    ],
    "paths": {
        "/enrollments": {
            "post": {
                "tags": ["Enrollments"],
                "summary": "Enroll a student in a course",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/EnrollRequest"}}
                ],
                "responses": {
                    "200": {"description": "Already enrolled", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "201": {"description": "Enrolled", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Course or student not eligible", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Course or student not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "503": {"description": "Retryable failure", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/payments/completed": {
            "post": {
                "tags": ["Enrollments"],
                "summary": "Grant access after a settled payment",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/PaymentCompletedRequest"}}
                ],
                "responses": {
                    "200": {"description": "Already enrolled", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "201": {"description": "Enrolled", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "503": {"description": "Retries exhausted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/access-requests": {
            "get": {
                "tags": ["AccessRequests"],
                "summary": "List access requests",
                "parameters": [
                    {"name": "status", "in": "query", "type": "string", "enum": ["pending", "approved", "rejected"]},
                    {"name": "student_id", "in": "query", "type": "string"},
                    {"name": "course_id", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["AccessRequests"],
                "summary": "Request access to a gated course",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateAccessRequestRequest"}}
                ],
                "responses": {
                    "200": {"description": "Pending request already open", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/access-requests/{id}": {
            "get": {
                "tags": ["AccessRequests"],
                "summary": "Get an access request",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/access-requests/{id}/approve": {
            "post": {
                "tags": ["AccessRequests"],
                "summary": "Approve a request and enroll the student",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Approved", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Request was rejected", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/access-requests/{id}/reject": {
            "post": {
                "tags": ["AccessRequests"],
                "summary": "Reject a request",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": false, "schema": {"$ref": "#/definitions/ReviewAccessRequestRequest"}}
                ],
                "responses": {
                    "200": {"description": "Rejected", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Request was approved", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/consistency": {
            "get": {
                "tags": ["Consistency"],
                "summary": "Audit enrollment consistency",
                "parameters": [
                    {"name": "student_id", "in": "query", "type": "string"},
                    {"name": "course_id", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "503": {"description": "Storage unavailable", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/consistency/repair": {
            "post": {
                "tags": ["Consistency"],
                "summary": "Repair reported divergence",
                "parameters": [
                    {"name": "payload", "in": "body", "required": false, "schema": {"$ref": "#/definitions/RepairRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/consistency/orphans/cleanup": {
            "post": {
                "tags": ["Consistency"],
                "summary": "Delete orphaned rows",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "EnrollRequest": {
            "type": "object",
            "required": ["course_id"],
            "properties": {
                "student_id": {"type": "string"},
                "course_id": {"type": "string"},
                "source": {"type": "string", "enum": ["free", "payment", "request-approval", "public-direct"]}
            }
        },
        "PaymentCompletedRequest": {
            "type": "object",
            "required": ["payment_id", "student_id", "course_id"],
            "properties": {
                "payment_id": {"type": "string"},
                "student_id": {"type": "string"},
                "course_id": {"type": "string"}
            }
        },
        "CreateAccessRequestRequest": {
            "type": "object",
            "required": ["course_id"],
            "properties": {
                "course_id": {"type": "string"},
                "reason": {"type": "string"}
            }
        },
        "ReviewAccessRequestRequest": {
            "type": "object",
            "properties": {
                "reason": {"type": "string"}
            }
        },
        "Issue": {
            "type": "object",
            "required": ["kind", "student_id", "course_id"],
            "properties": {
                "kind": {"type": "string", "enum": ["progress-only", "enrollment-only", "approved-without-enrollment", "pending-while-enrolled", "orphan-enrollment", "orphan-progress", "orphan-access-request"]},
                "student_id": {"type": "string"},
                "course_id": {"type": "string"},
                "record_id": {"type": "string"}
            }
        },
        "RepairRequest": {
            "type": "object",
            "properties": {
                "issues": {
                    "type": "array",
                    "items": {"$ref": "#/definitions/Issue"}
                }
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"},
                "retryable": {"type": "boolean"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
