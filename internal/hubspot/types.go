package hubspot

// noteToContactAssociationTypeID is the HubSpot-defined association type
// linking a note to a contact.
const noteToContactAssociationTypeID = 202

// searchProperties are the contact properties requested on every search and
// listing call.
var searchProperties = []string{"firstname", "lastname", "phone", "mobilephone"}

// ContactSearchRequest is the body of POST /crm/v3/objects/contacts/search.
type ContactSearchRequest struct {
	FilterGroups []FilterGroup `json:"filterGroups"`
	Properties   []string      `json:"properties"`
}

type FilterGroup struct {
	Filters []Filter `json:"filters"`
}

type Filter struct {
	PropertyName string `json:"propertyName"`
	Operator     string `json:"operator"`
	Value        string `json:"value"`
}

// Contact is a CRM contact record.
type Contact struct {
	ID         string            `json:"id"`
	Properties map[string]string `json:"properties"`
}

type ContactSearchResponse struct {
	Total   int       `json:"total"`
	Results []Contact `json:"results"`
}

type ContactListResponse struct {
	Results []Contact `json:"results"`
}

// NoteRequest is the body of POST /crm/v3/objects/notes.
type NoteRequest struct {
	Properties   NoteProperties `json:"properties"`
	Associations []Association  `json:"associations"`
}

type NoteProperties struct {
	Body      string `json:"hs_note_body"`
	Timestamp string `json:"hs_timestamp"`
}

type Association struct {
	To    AssociationTarget `json:"to"`
	Types []AssociationType `json:"types"`
}

type AssociationTarget struct {
	ID string `json:"id"`
}

type AssociationType struct {
	AssociationCategory string `json:"associationCategory"`
	AssociationTypeID   int    `json:"associationTypeId"`
}

type Note struct {
	ID string `json:"id"`
}
