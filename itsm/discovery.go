package itsm

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/iancoleman/strcase"
	"github.com/tidwall/gjson"
)

// Option is one entry of a host dropdown: a display name and the value
// submitted back to the adapter.
type Option struct {
	Name  string
	Value string
}

// displayLabel turns an internal field name into a dropdown label, e.g.
// "IncidentNumber" -> "Incident Number".
func displayLabel(name string) string {
	words := strings.Fields(strcase.ToDelimited(name, ' '))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// ObjectFields discovers the fields of a dataset by probing one record
// and reading its keys. An empty dataset yields an empty list, which is
// not an error: the host renders an empty dropdown.
func (c *Client) ObjectFields(ctx context.Context, objectName string) ([]Option, error) {
	records, err := c.fetchListPage(ctx, objectName+"s", ListQuery{}, 0, 1, "discovery.fields")
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	var options []Option
	records[0].ForEach(func(key, _ gjson.Result) bool {
		name := key.String()
		if strings.HasPrefix(name, "@odata") {
			return true
		}
		options = append(options, Option{Name: displayLabel(name), Value: name})
		return true
	})
	return options, nil
}

// savedSearchPattern scans the dataset's $metadata document for saved
// search function definitions and their ActionId default.
var savedSearchPattern = regexp.MustCompile(
	`(?s)<Function Name="([^"]+)">.*?<Parameter Name="ActionId".*?<PropertyValue Property="DefaultValue" String="([^"]+)"`)

// SavedSearches lists the saved searches defined on a dataset. The option
// value packs the search name and action id as "Name|ActionId", the form
// the saved search handler expects; underscores in names render as spaces.
func (c *Client) SavedSearches(ctx context.Context, objectName string) ([]Option, error) {
	var body string
	err := c.APIBuilder().
		Pathf("/api/odata/%ss/$metadata", objectName).
		Handle(captureJSON(&body, "discovery.savedSearches")).
		Fetch(ctx)
	if err != nil {
		return nil, err
	}
	matches := savedSearchPattern.FindAllStringSubmatch(body, -1)
	options := make([]Option, 0, len(matches))
	for _, m := range matches {
		name, actionID := m[1], m[2]
		options = append(options, Option{
			Name:  strings.ReplaceAll(name, "_", " "),
			Value: fmt.Sprintf("%s|%s", name, actionID),
		})
	}
	sort.Slice(options, func(i, j int) bool { return options[i].Name < options[j].Name })
	return options, nil
}

// employeeSearchLimit keeps the requester dropdown lookup snappy: the host
// narrows the result with the search term rather than scrolling.
const employeeSearchLimit = 20

// Employees lists tenant contacts for the service request requester
// dropdown, optionally narrowed by a search term. The option value is the
// contact's RecId.
func (c *Client) Employees(ctx context.Context, search string) ([]Option, error) {
	var body string
	b := c.APIBuilder().
		Path("/api/odata/businessobject/Frs_CompositeContract_Contacts").
		Param("$select", "RecId,DisplayName").
		Param("$top", fmt.Sprint(employeeSearchLimit))
	if search != "" {
		b = b.Param("$search", search)
	}
	err := b.
		Handle(captureJSON(&body, "discovery.employees")).
		Fetch(ctx)
	if err != nil {
		return nil, err
	}
	records := gjson.Get(body, "value").Array()
	options := make([]Option, 0, len(records))
	for _, record := range records {
		name := record.Get("DisplayName").String()
		if name == "" {
			name = record.Get("RecId").String()
		}
		options = append(options, Option{
			Name:  name,
			Value: record.Get("RecId").String(),
		})
	}
	return options, nil
}

// Subscriptions lists the service request templates available to a user,
// optionally narrowed by a case-insensitive name filter, sorted by name.
func (c *Client) Subscriptions(ctx context.Context, userID, filter string) ([]Option, error) {
	var body string
	err := c.APIBuilder().
		Pathf("/api/rest/Template/%s/_All_", userID).
		Handle(captureJSON(&body, "discovery.subscriptions")).
		Fetch(ctx)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(filter)
	var options []Option
	gjson.Parse(body).ForEach(func(_, record gjson.Result) bool {
		name := record.Get("strName").String()
		if needle != "" && !strings.Contains(strings.ToLower(name), needle) {
			return true
		}
		options = append(options, Option{
			Name:  name,
			Value: record.Get("strSubscriptionId").String(),
		})
		return true
	})
	sort.Slice(options, func(i, j int) bool { return options[i].Name < options[j].Name })
	return options, nil
}
