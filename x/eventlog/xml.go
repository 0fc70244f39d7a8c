package eventlog

import (
	"encoding/xml"
	"strings"
	"time"
)

// xmlMap decodes an element of unknown shape into nested maps keyed by
// local element name. Leaf elements become their trimmed text and empty
// leaves are dropped.
type xmlMap map[string]any

func (m *xmlMap) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	v, err := decodeElement(d)
	if err != nil {
		return err
	}
	if sm, ok := v.(xmlMap); ok {
		*m = sm
	} else {
		*m = xmlMap{}
	}
	return nil
}

// decodeElement reads tokens up to and including the end of the current
// element.
func decodeElement(d *xml.Decoder) (any, error) {
	var text strings.Builder
	var children xmlMap
	for {
		tok, err := d.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.CharData:
			text.Write(t)
		case xml.StartElement:
			v, err := decodeElement(d)
			if err != nil {
				return nil, err
			}
			if children == nil {
				children = xmlMap{}
			}
			if s, ok := v.(string); !ok || s != "" {
				children[t.Name.Local] = v
			}
		case xml.EndElement:
			if children != nil {
				return children, nil
			}
			return strings.TrimSpace(text.String()), nil
		}
	}
}

type xmlData struct {
	Name  string `xml:"Name,attr"`
	Value string `xml:",chardata"`
}

type xmlEvent struct {
	EventData struct {
		Data []xmlData `xml:"Data"`
	} `xml:"EventData"`
	UserData xmlMap `xml:"UserData"`
	System   struct {
		Provider struct {
			Name string `xml:"Name,attr"`
			Guid string `xml:"Guid,attr"`
		} `xml:"Provider"`
		EventID struct {
			Value      string `xml:",chardata"`
			Qualifiers string `xml:"Qualifiers,attr"`
		} `xml:"EventID"`
		Version     string `xml:"Version"`
		Level       string `xml:"Level"`
		Task        string `xml:"Task"`
		Opcode      string `xml:"Opcode"`
		Keywords    string `xml:"Keywords"`
		TimeCreated struct {
			SystemTime string `xml:"SystemTime,attr"`
		} `xml:"TimeCreated"`
		EventRecordID string `xml:"EventRecordID"`
		Correlation   struct {
			ActivityID        string `xml:"ActivityID,attr"`
			RelatedActivityID string `xml:"RelatedActivityID,attr"`
		} `xml:"Correlation"`
		Execution struct {
			ProcessID string `xml:"ProcessID,attr"`
			ThreadID  string `xml:"ThreadID,attr"`
		} `xml:"Execution"`
		Channel  string `xml:"Channel"`
		Computer string `xml:"Computer"`
		Security struct {
			UserID string `xml:"UserID,attr"`
		} `xml:"Security"`
	} `xml:"System"`
}

// EventLog is the JSON friendly form of an event's XML rendering.
// EventDataMap holds named Data elements, EventData the unnamed ones.
type EventLog struct {
	EventDataMap map[string]string `json:"eventDataMap,omitempty"`
	EventData    []string          `json:"eventData,omitempty"`
	UserData     map[string]any    `json:"userData,omitempty"`
	System       struct {
		Provider struct {
			Name string `json:"name"`
			Guid string `json:"guid,omitempty"`
		} `json:"provider"`
		EventID     string `json:"eventId"`
		Qualifiers  string `json:"qualifiers,omitempty"`
		Version     string `json:"version,omitempty"`
		Level       string `json:"level"`
		Task        string `json:"task"`
		Opcode      string `json:"opcode,omitempty"`
		Keywords    string `json:"keywords"`
		TimeCreated struct {
			SystemTime time.Time `json:"systemTime"`
		} `json:"timeCreated"`
		EventRecordID string `json:"eventRecordId"`
		Correlation   struct {
			ActivityID        string `json:"activityId,omitempty"`
			RelatedActivityID string `json:"relatedActivityId,omitempty"`
		} `json:"correlation"`
		Execution struct {
			ProcessID string `json:"processId,omitempty"`
			ThreadID  string `json:"threadId,omitempty"`
		} `json:"execution"`
		Channel  string `json:"channel"`
		Computer string `json:"computer"`
		Security struct {
			UserID string `json:"userId,omitempty"`
		} `json:"security"`
	} `json:"system"`
}

// ParseXML decodes the XML rendering of one event.
func ParseXML(s string) (*EventLog, error) {
	var xe xmlEvent
	if err := xml.Unmarshal([]byte(s), &xe); err != nil {
		return nil, err
	}
	return xe.toEventLog(), nil
}

func (xe *xmlEvent) toEventLog() *EventLog {
	event := &EventLog{EventDataMap: map[string]string{}}
	for _, d := range xe.EventData.Data {
		if d.Name != "" {
			event.EventDataMap[d.Name] = d.Value
		} else {
			event.EventData = append(event.EventData, d.Value)
		}
	}
	if len(xe.UserData) > 0 {
		event.UserData = xe.UserData
	}
	sys := &event.System
	sys.Provider.Name = xe.System.Provider.Name
	sys.Provider.Guid = xe.System.Provider.Guid
	sys.EventID = xe.System.EventID.Value
	sys.Qualifiers = xe.System.EventID.Qualifiers
	sys.Version = xe.System.Version
	sys.Level = xe.System.Level
	sys.Task = xe.System.Task
	sys.Opcode = xe.System.Opcode
	sys.Keywords = xe.System.Keywords
	// The OS writes seven fractional digits which RFC3339Nano accepts.
	sys.TimeCreated.SystemTime, _ = time.Parse(time.RFC3339Nano, xe.System.TimeCreated.SystemTime)
	sys.EventRecordID = xe.System.EventRecordID
	sys.Correlation.ActivityID = xe.System.Correlation.ActivityID
	sys.Correlation.RelatedActivityID = xe.System.Correlation.RelatedActivityID
	sys.Execution.ProcessID = xe.System.Execution.ProcessID
	sys.Execution.ThreadID = xe.System.Execution.ThreadID
	sys.Channel = xe.System.Channel
	sys.Computer = xe.System.Computer
	sys.Security.UserID = xe.System.Security.UserID
	return event
}
