package sharepoint

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ListTemplateType is the base template a list was created from. Values are
// the SharePoint base template numbers; graph reports them by name.
type ListTemplateType int

const (
	InvalidType                   ListTemplateType = -1
	NoListTemplate                ListTemplateType = 0
	GenericList                   ListTemplateType = 100
	DocumentLibrary               ListTemplateType = 101
	Survey                        ListTemplateType = 102
	Links                         ListTemplateType = 103
	Announcements                 ListTemplateType = 104
	Contacts                      ListTemplateType = 105
	Events                        ListTemplateType = 106
	Tasks                         ListTemplateType = 107
	DiscussionBoard               ListTemplateType = 108
	PictureLibrary                ListTemplateType = 109
	DataSources                   ListTemplateType = 110
	XMLForm                       ListTemplateType = 115
	NoCodeWorkflows               ListTemplateType = 117
	WorkflowProcess               ListTemplateType = 118
	WebPageLibrary                ListTemplateType = 119
	CustomGrid                    ListTemplateType = 120
	DataConnectionLibrary         ListTemplateType = 130
	WorkflowHistory               ListTemplateType = 140
	GanttTasks                    ListTemplateType = 150
	HelpLibrary                   ListTemplateType = 151
	AccessRequest                 ListTemplateType = 160
	TasksWithTimelineAndHierarchy ListTemplateType = 171
	MaintenanceLogs               ListTemplateType = 175
	Meetings                      ListTemplateType = 200
	Agenda                        ListTemplateType = 201
	MeetingUser                   ListTemplateType = 202
	Decision                      ListTemplateType = 204
	MeetingObjective              ListTemplateType = 207
	TextBox                       ListTemplateType = 210
	ThingsToBring                 ListTemplateType = 211
	HomePageLibrary               ListTemplateType = 212
	Posts                         ListTemplateType = 301
	Comments                      ListTemplateType = 302
	Categories                    ListTemplateType = 303
	Facility                      ListTemplateType = 402
	Whereabouts                   ListTemplateType = 403
	CallTrack                     ListTemplateType = 404
	Circulation                   ListTemplateType = 405
	Timecard                      ListTemplateType = 420
	Holidays                      ListTemplateType = 421
	IMEDic                        ListTemplateType = 499
	ExternalList                  ListTemplateType = 600
	MySiteDocumentLibrary         ListTemplateType = 700
	IssueTracking                 ListTemplateType = 1100
	AdminTasks                    ListTemplateType = 1200
	HealthRules                   ListTemplateType = 1220
	HealthReports                 ListTemplateType = 1221
	DeveloperSiteDraftApps        ListTemplateType = 1230
)

var listTemplateNames = map[ListTemplateType]string{
	InvalidType:                   "invalidType",
	NoListTemplate:                "noListTemplate",
	GenericList:                   "genericList",
	DocumentLibrary:               "documentLibrary",
	Survey:                        "survey",
	Links:                         "links",
	Announcements:                 "announcements",
	Contacts:                      "contacts",
	Events:                        "events",
	Tasks:                         "tasks",
	DiscussionBoard:               "discussionBoard",
	PictureLibrary:                "pictureLibrary",
	DataSources:                   "dataSources",
	XMLForm:                       "xmlForm",
	NoCodeWorkflows:               "noCodeWorkflows",
	WorkflowProcess:               "workflowProcess",
	WebPageLibrary:                "webPageLibrary",
	CustomGrid:                    "customGrid",
	DataConnectionLibrary:         "dataConnectionLibrary",
	WorkflowHistory:               "workflowHistory",
	GanttTasks:                    "ganttTasks",
	HelpLibrary:                   "helpLibrary",
	AccessRequest:                 "accessRequest",
	TasksWithTimelineAndHierarchy: "tasksWithTimelineAndHierarchy",
	MaintenanceLogs:               "maintenanceLogs",
	Meetings:                      "meetings",
	Agenda:                        "agenda",
	MeetingUser:                   "meetingUser",
	Decision:                      "decision",
	MeetingObjective:              "meetingObjective",
	TextBox:                       "textBox",
	ThingsToBring:                 "thingsToBring",
	HomePageLibrary:               "homePageLibrary",
	Posts:                         "posts",
	Comments:                      "comments",
	Categories:                    "categories",
	Facility:                      "facility",
	Whereabouts:                   "whereabouts",
	CallTrack:                     "callTrack",
	Circulation:                   "circulation",
	Timecard:                      "timecard",
	Holidays:                      "holidays",
	IMEDic:                        "imeDic",
	ExternalList:                  "externalList",
	MySiteDocumentLibrary:         "mySiteDocumentLibrary",
	IssueTracking:                 "issueTracking",
	AdminTasks:                    "adminTasks",
	HealthRules:                   "healthRules",
	HealthReports:                 "healthReports",
	DeveloperSiteDraftApps:        "developerSiteDraftApps",
}

var listTemplatesByName = func() map[string]ListTemplateType {
	out := make(map[string]ListTemplateType, len(listTemplateNames))
	for t, name := range listTemplateNames {
		out[strings.ToLower(name)] = t
	}
	return out
}()

func (t ListTemplateType) String() string {
	if name, ok := listTemplateNames[t]; ok {
		return name
	}
	return strconv.Itoa(int(t))
}

func (t ListTemplateType) MarshalText() ([]byte, error) {
	name, ok := listTemplateNames[t]
	if !ok {
		return nil, errors.Errorf("unknown list template type %d", int(t))
	}
	return []byte(name), nil
}

// UnmarshalText accepts a template name or a base template number.
func (t *ListTemplateType) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if v, ok := listTemplatesByName[strings.ToLower(s)]; ok {
		*t = v
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return errors.Errorf("unknown list template type '%s'", s)
	}
	if _, ok := listTemplateNames[ListTemplateType(n)]; !ok {
		return errors.Errorf("unknown list template type %d", n)
	}
	*t = ListTemplateType(n)
	return nil
}

// ListExperience selects the user interface a list is rendered with.
type ListExperience int

const (
	ExperienceAuto ListExperience = iota
	ExperienceNew
	ExperienceClassic
)

var listExperienceNames = []string{"Auto", "NewExperience", "ClassicExperience"}

func (e ListExperience) String() string {
	if e >= 0 && int(e) < len(listExperienceNames) {
		return listExperienceNames[e]
	}
	return strconv.Itoa(int(e))
}

func (e ListExperience) MarshalText() ([]byte, error) {
	if e < 0 || int(e) >= len(listExperienceNames) {
		return nil, errors.Errorf("unknown list experience %d", int(e))
	}
	return []byte(listExperienceNames[e]), nil
}

func (e *ListExperience) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	for i, name := range listExperienceNames {
		if strings.EqualFold(name, s) {
			*e = ListExperience(i)
			return nil
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n >= len(listExperienceNames) {
		return errors.Errorf("unknown list experience '%s'", s)
	}
	*e = ListExperience(n)
	return nil
}

// ListReadingDirection is the text direction of a list. SharePoint reports it
// as a lower case string.
type ListReadingDirection string

const (
	ReadingDirectionNone ListReadingDirection = "none"
	ReadingDirectionLTR  ListReadingDirection = "ltr"
	ReadingDirectionRTL  ListReadingDirection = "rtl"
)

func (d ListReadingDirection) MarshalText() ([]byte, error) {
	switch d {
	case ReadingDirectionNone, ReadingDirectionLTR, ReadingDirectionRTL:
		return []byte(d), nil
	case "":
		return []byte(ReadingDirectionNone), nil
	}
	return nil, errors.Errorf("unknown reading direction '%s'", string(d))
}

func (d *ListReadingDirection) UnmarshalText(text []byte) error {
	switch v := ListReadingDirection(strings.ToLower(strings.TrimSpace(string(text)))); v {
	case ReadingDirectionNone, ReadingDirectionLTR, ReadingDirectionRTL:
		*d = v
		return nil
	}
	return errors.Errorf("unknown reading direction '%s'", text)
}
