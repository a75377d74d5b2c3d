package testutil

// TakeoffCols must match the RETURNING clause order in queries.go for Takeoffs
var TakeoffCols = []string{
	"id", "title", "description", "project_type", "size", "zip_code", "address",
	"price", "features", "specifications", "tags", "active", "expires_at",
	"created_by", "files", "pdf_previews", "created_at", "updated_at",
}

// TakeoffWithCreatorCols adds the joined creator profile columns
var TakeoffWithCreatorCols = append(append([]string{}, TakeoffCols...),
	"email", "first_name", "last_name",
)
