package fakerest

// Fixture is a seeded resource
type Fixture struct {
	Type   string
	ID     string
	Fields Object
}

// Fixture ids, stable so tests can address them
const (
	CommunityID  = "2b3c8a55-7d0e-4c2f-9f61-3a4b5c6d7e8f"
	CollectionID = "5e6f7a8b-9c0d-4e1f-8a2b-3c4d5e6f7a8b"
	ItemID       = "0ec7ff22-f211-40ab-a69e-c819b0b1f357"
	OtherItemID  = "4bbd8c5e-1f2a-4b3c-9d4e-5f6a7b8c9d0e"
	AuthorID     = "9a8b7c6d-5e4f-4a3b-8c2d-1e0f9a8b7c6d"
	BitstreamID  = "d1c2b3a4-e5f6-4789-8abc-def012345678"
)

func metadata(pairs ...string) map[string]any {
	md := make(map[string]any, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		md[pairs[i]] = []map[string]any{{"value": pairs[i+1], "language": nil, "authority": nil, "confidence": -1, "place": 0}}
	}
	return md
}

// Fixtures returns the resources every backend starts with
func Fixtures() []Fixture {
	return []Fixture{
		{Type: "community", ID: CommunityID, Fields: Object{
			"name":     "Research Outputs",
			"handle":   "123456789/1",
			"metadata": metadata("dc.title", "Research Outputs"),
		}},
		{Type: "collection", ID: CollectionID, Fields: Object{
			"name":     "Theses",
			"handle":   "123456789/2",
			"metadata": metadata("dc.title", "Theses"),
		}},
		{Type: "item", ID: ItemID, Fields: Object{
			"name":         "On Caching Normalized Resources",
			"handle":       "123456789/3",
			"inArchive":    true,
			"discoverable": true,
			"withdrawn":    false,
			"lastModified": "2024-03-01T10:00:00Z",
			"metadata": metadata(
				"dc.title", "On Caching Normalized Resources",
				"dc.date.issued", "2024",
			),
		}},
		{Type: "item", ID: OtherItemID, Fields: Object{
			"name":         "Stale While Revalidate in Practice",
			"handle":       "123456789/4",
			"inArchive":    true,
			"discoverable": true,
			"withdrawn":    false,
			"lastModified": "2024-04-12T08:30:00Z",
			"metadata":     metadata("dc.title", "Stale While Revalidate in Practice"),
		}},
		{Type: "item", ID: AuthorID, Fields: Object{
			"name":         "Doe, Jane",
			"handle":       "123456789/5",
			"inArchive":    true,
			"discoverable": true,
			"withdrawn":    false,
			"lastModified": "2024-01-20T12:00:00Z",
			"metadata": metadata(
				"dspace.entity.type", "Person",
				"person.familyName", "Doe",
				"person.givenName", "Jane",
			),
		}},
		{Type: "bitstream", ID: BitstreamID, Fields: Object{
			"name":      "thesis.pdf",
			"sizeBytes": 482113,
			"checkSum":  map[string]any{"checkSumAlgorithm": "MD5", "value": "2f1a8c0b5d6e7f809a1b2c3d4e5f6a7b"},
			"metadata":  metadata("dc.title", "thesis.pdf"),
		}},
		{Type: "relationship", ID: "1", Fields: Object{
			"leftItem":         ItemID,
			"rightItem":        AuthorID,
			"relationshipType": "1",
			"leftPlace":        0,
			"rightPlace":       0,
			"leftwardValue":    "isAuthorOfPublication",
			"rightwardValue":   "isPublicationOfAuthor",
		}},
	}
}
