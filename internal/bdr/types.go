package bdr

import (
	"math"
	"strconv"
	"strings"
)

// TextDatastreamID names the datastream holding an item's extracted text.
const TextDatastreamID = "EXTRACTED_TEXT"

// ItemDoc is the subset of an item API document this tool reads. The link
// maps hold any JSON value; upstream records are not uniformly typed, so
// non-string entries are tolerated and skipped during resolution.
type ItemDoc struct {
	PID          string                    `json:"pid"`
	PrimaryTitle string                    `json:"primary_title"`
	MODSTitle    string                    `json:"mods_title_full_primary_tsi"`
	URI          string                    `json:"uri"`
	Links        ItemLinks                 `json:"links"`
	Datastreams  map[string]DatastreamInfo `json:"datastreams"`
	Relations    Relations                 `json:"relations"`
	HasPart      []any                     `json:"hasPart"`
	ZipFilelist  []string                  `json:"zip_filelist_ssim"`
}

// ItemLinks holds the item document's download link maps.
type ItemLinks struct {
	ContentDatastreams map[string]any `json:"content_datastreams"`
	Datastreams        map[string]any `json:"datastreams"`
}

// DatastreamInfo carries the declared byte size of one datastream. The size
// arrives as a JSON number or a digit string depending on the record's age.
type DatastreamInfo struct {
	Size any `json:"size"`
}

// Relations holds the item relations this tool traverses. Entries are plain
// pid strings or objects carrying a pid/id key.
type Relations struct {
	HasPart              []any `json:"hasPart"`
	IsMemberOfCollection []any `json:"isMemberOfCollection"`
}

// Title returns the item's display title, falling back to the MODS title.
func (d *ItemDoc) Title() string {
	if d.PrimaryTitle != "" {
		return d.PrimaryTitle
	}
	return d.MODSTitle
}

// TextSize returns the declared size of the extracted-text datastream, or
// nil when absent or malformed.
func (d *ItemDoc) TextSize() *int64 {
	ds, ok := d.Datastreams[TextDatastreamID]
	if !ok {
		return nil
	}
	return normalizeSize(ds.Size)
}

// ChildPIDs returns the hasPart relation's pids in document order. Older
// records carry hasPart at the document's top level instead of under
// relations; the top-level key wins when present.
func (d *ItemDoc) ChildPIDs() []string {
	if d.HasPart != nil {
		return relationPIDs(d.HasPart)
	}
	return relationPIDs(d.Relations.HasPart)
}

// CollectionPIDs returns the isMemberOfCollection relation's pids in
// document order.
func (d *ItemDoc) CollectionPIDs() []string {
	return relationPIDs(d.Relations.IsMemberOfCollection)
}

func relationPIDs(entries []any) []string {
	var pids []string
	for _, entry := range entries {
		switch value := entry.(type) {
		case string:
			if value != "" {
				pids = append(pids, value)
			}
		case map[string]any:
			if pid, ok := value["pid"].(string); ok && pid != "" {
				pids = append(pids, pid)
				continue
			}
			if id, ok := value["id"].(string); ok && id != "" {
				pids = append(pids, id)
			}
		}
	}
	return pids
}

// normalizeSize coerces a declared datastream size to bytes. Numbers must be
// integral; strings must be all digits. Anything else is an unknown size.
func normalizeSize(raw any) *int64 {
	switch value := raw.(type) {
	case float64:
		if value != math.Trunc(value) {
			return nil
		}
		size := int64(value)
		return &size
	case string:
		if value == "" {
			return nil
		}
		for _, r := range value {
			if r < '0' || r > '9' {
				return nil
			}
		}
		size, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil
		}
		return &size
	default:
		return nil
	}
}

// CollectionDoc is the subset of a collection API document this tool reads.
// Ancestors appear as objects with name/title keys or as bare strings.
type CollectionDoc struct {
	Name         string `json:"name"`
	PrimaryTitle string `json:"primary_title"`
	Ancestors    []any  `json:"ancestors"`
}

// DisplayName returns the collection's bare name, falling back to the
// primary title. Item API relations expose collections under "name";
// some collection records only carry "primary_title".
func (d *CollectionDoc) DisplayName() string {
	if name := strings.TrimSpace(d.Name); name != "" {
		return name
	}
	return strings.TrimSpace(d.PrimaryTitle)
}

// Title derives the display title for a collection: the collection's own
// name, qualified by its nearest ancestor when one is known, e.g.
// "Theses and Dissertations -- (from Computer Science)".
func (d *CollectionDoc) Title() string {
	name := strings.TrimSpace(d.Name)
	parent := ""
	if len(d.Ancestors) > 0 {
		switch last := d.Ancestors[len(d.Ancestors)-1].(type) {
		case string:
			parent = strings.TrimSpace(last)
		case map[string]any:
			if v, ok := last["name"].(string); ok && strings.TrimSpace(v) != "" {
				parent = strings.TrimSpace(v)
			} else if v, ok := last["title"].(string); ok && strings.TrimSpace(v) != "" {
				parent = strings.TrimSpace(v)
			}
		}
	}
	if name != "" && parent != "" {
		return name + " -- (from " + parent + ")"
	}
	return name
}

// SearchDoc is one hit from the search API. Only the requested field list is
// populated; everything else stays zero.
type SearchDoc struct {
	PID            string   `json:"pid"`
	PrimaryTitle   string   `json:"primary_title"`
	CollectionPIDs []string `json:"rel_is_member_of_collection_ssim"`
	PartOfPIDs     []string `json:"rel_is_part_of_ssim"`
}
