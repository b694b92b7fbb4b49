package model

// Permission represents a string code for a specific system action.
type Permission string

const (
	// PermissionExamsWriteOwn allows creating exams and managing own exams.
	PermissionExamsWriteOwn Permission = "exams:write_own"

	// PermissionExamsTake allows joining and submitting exams.
	PermissionExamsTake Permission = "exams:take"

	// PermissionMediaUpload allows uploading question images.
	PermissionMediaUpload Permission = "media:upload"

	// PermissionExamsReadAll allows viewing every exam.
	PermissionExamsReadAll Permission = "exams:read_all"

	// PermissionExamsDeleteAll allows deleting any exam.
	PermissionExamsDeleteAll Permission = "exams:delete_all"

	// PermissionUsersRead allows listing users.
	PermissionUsersRead Permission = "users:read"

	// PermissionUsersWrite allows deleting users.
	PermissionUsersWrite Permission = "users:write"
)

// AllPermissions is a slice of all available permissions.
var AllPermissions = []Permission{
	PermissionExamsWriteOwn,
	PermissionExamsTake,
	PermissionMediaUpload,
	PermissionExamsReadAll,
	PermissionExamsDeleteAll,
	PermissionUsersRead,
	PermissionUsersWrite,
}

var userPermissions = []Permission{
	PermissionExamsWriteOwn,
	PermissionExamsTake,
	PermissionMediaUpload,
}

// PermissionsFor returns the permission codes granted to role.
func PermissionsFor(role Role) []string {
	perms := userPermissions
	if role == RoleAdmin {
		perms = AllPermissions
	}
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = string(p)
	}
	return out
}
