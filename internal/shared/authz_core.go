package shared

// Administrative privileges guarding the access API.
const (
	PrivCatalogView = "ACCESS.CATALOG.VIEW"
	PrivCatalogEdit = "ACCESS.CATALOG.EDIT"

	PrivStructuresView = "ACCESS.STRUCTURES.VIEW"
	PrivStructuresEdit = "ACCESS.STRUCTURES.EDIT"

	PrivUsersView = "ACCESS.USERS.VIEW"
	PrivUsersEdit = "ACCESS.USERS.EDIT"

	PrivAssociationsEdit = "ACCESS.ASSOCIATIONS.EDIT"
)

// CoreScopes lists all administrative privileges.
func CoreScopes() []string {
	return []string{
		PrivCatalogView,
		PrivCatalogEdit,
		PrivStructuresView,
		PrivStructuresEdit,
		PrivUsersView,
		PrivUsersEdit,
		PrivAssociationsEdit,
	}
}
