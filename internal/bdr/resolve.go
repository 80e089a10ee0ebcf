package bdr

// TextLink locates an item's extracted-text payload. Size is the declared
// datastream size when the metadata carries a usable one.
type TextLink struct {
	URL  string
	Size *int64
}

// ResolveTextLink finds the download URL for an item's extracted text.
//
// Precedence follows the richness of the item document:
//  1. links.content_datastreams.EXTRACTED_TEXT
//  2. links.datastreams.EXTRACTED_TEXT
//  3. a datastreams.EXTRACTED_TEXT entry with no link, in which case the
//     canonical /storage/ URL is synthesized from the pid
//
// The declared size comes from the datastreams metadata block in every
// branch. Non-string link values are skipped, not errors. The second
// return is false when the item has no extracted text at all.
func (c *Client) ResolveTextLink(item *ItemDoc) (TextLink, bool) {
	size := item.TextSize()

	if linkURL := stringValue(item.Links.ContentDatastreams[TextDatastreamID]); linkURL != "" {
		return TextLink{URL: linkURL, Size: size}, true
	}
	if linkURL := stringValue(item.Links.Datastreams[TextDatastreamID]); linkURL != "" {
		return TextLink{URL: linkURL, Size: size}, true
	}
	if _, ok := item.Datastreams[TextDatastreamID]; ok {
		return TextLink{URL: c.StorageTextURL(item.PID), Size: size}, true
	}
	return TextLink{}, false
}

func stringValue(raw any) string {
	if s, ok := raw.(string); ok {
		return s
	}
	return ""
}
