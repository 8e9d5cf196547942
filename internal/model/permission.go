package model

// Permission represents a string code for a specific system action.
type Permission string

const (
	// PermissionAssessmentsRead allows viewing assessment lists and details.
	PermissionAssessmentsRead Permission = "assessments:read"

	// PermissionAssessmentsWrite allows creating draft assessments.
	PermissionAssessmentsWrite Permission = "assessments:write"

	// PermissionAssessmentsWriteAll lifts the author filter on assessment lists.
	PermissionAssessmentsWriteAll Permission = "assessments:write_all"

	// PermissionAssessmentsPublish allows publishing assessments to students.
	PermissionAssessmentsPublish Permission = "assessments:publish"

	// PermissionResultsRead allows viewing attempt results and summaries.
	PermissionResultsRead Permission = "results:read"

	// PermissionResultsExport allows downloading results as a spreadsheet.
	PermissionResultsExport Permission = "results:export"
)

// AllPermissions is a slice of all available permissions.
var AllPermissions = []Permission{
	PermissionAssessmentsRead,
	PermissionAssessmentsWrite,
	PermissionAssessmentsWriteAll,
	PermissionAssessmentsPublish,
	PermissionResultsRead,
	PermissionResultsExport,
}
