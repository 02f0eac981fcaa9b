package controllers

import (
	"encoding/xml"
	"sort"
	"strconv"
	"time"

	"pln-staging-api/services"
)

const (
	swordStateScheme = "http://purl.org/net/sword/terms/state"
	plnStateScheme   = "http://pkp.sfu.ca/SWORD/pln-state"
	swordErrorPrefix = "http://purl.org/net/sword/error/"
)

type serviceDocumentXML struct {
	XMLName      xml.Name `xml:"http://www.w3.org/2007/app service"`
	XmlnsDcterms string   `xml:"xmlns:dcterms,attr"`
	XmlnsSword   string   `xml:"xmlns:sword,attr"`
	XmlnsAtom    string   `xml:"xmlns:atom,attr"`
	XmlnsLom     string   `xml:"xmlns:lom,attr"`
	XmlnsPkp     string   `xml:"xmlns:pkp,attr"`

	Version      string          `xml:"sword:version"`
	MaxUpload    int64           `xml:"sword:maxUploadSize"`
	ChecksumType string          `xml:"lom:uploadChecksumType"`
	Accepting    plnAcceptingXML `xml:"pkp:pln_accepting"`
	Terms        termsOfUseXML   `xml:"pkp:terms_of_use"`
	Workspace    workspaceXML    `xml:"workspace"`
}

type plnAcceptingXML struct {
	IsAccepting string `xml:"is_accepting,attr"`
	Message     string `xml:",chardata"`
}

type termsOfUseXML struct {
	Updated         string    `xml:"updated,attr,omitempty"`
	JournalAccepted string    `xml:"journal_accepted,attr"`
	Terms           []termXML `xml:",any"`
}

type termXML struct {
	XMLName xml.Name
	Updated string `xml:"updated,attr,omitempty"`
	Content string `xml:",chardata"`
}

type workspaceXML struct {
	Title      string        `xml:"atom:title"`
	Collection collectionXML `xml:"collection"`
}

type collectionXML struct {
	Href      string `xml:"href,attr"`
	Accept    string `xml:"accept"`
	Mediation string `xml:"sword:mediation"`
}

func renderServiceDocument(doc *services.ServiceDocument, collectionHref string) ([]byte, error) {
	out := serviceDocumentXML{
		XmlnsDcterms: services.NSDcterms,
		XmlnsSword:   services.NSSword,
		XmlnsAtom:    services.NSAtom,
		XmlnsLom:     services.NSLom,
		XmlnsPkp:     services.NSPkp,
		Version:      "2.0",
		MaxUpload:    doc.MaxUploadBytes,
		ChecksumType: doc.ChecksumAlgorithm,
		Accepting: plnAcceptingXML{
			IsAccepting: yesNo(doc.Accepting),
			Message:     doc.Message,
		},
		Terms: termsOfUseXML{
			Updated:         formatTime(doc.TermsUpdated),
			JournalAccepted: yesNo(doc.TermsAccepted),
		},
		Workspace: workspaceXML{
			Title: "PKP PLN deposit for " + doc.OnBehalfOf,
			Collection: collectionXML{
				Href:      collectionHref,
				Accept:    "application/atom+xml;type=entry",
				Mediation: "true",
			},
		},
	}
	for _, term := range doc.Terms {
		out.Terms.Terms = append(out.Terms.Terms, termXML{
			XMLName: xml.Name{Local: "pkp:" + term.KeyCode},
			Updated: formatTime(term.UpdateAt),
			Content: term.Content,
		})
	}
	return marshalXML(out)
}

type statementXML struct {
	XMLName    xml.Name `xml:"atom:feed"`
	XmlnsAtom  string   `xml:"xmlns:atom,attr"`
	XmlnsSword string   `xml:"xmlns:sword,attr"`
	XmlnsPkp   string   `xml:"xmlns:pkp,attr"`

	Categories []categoryXML       `xml:"atom:category"`
	Original   originalDepositXML  `xml:"sword:originalDeposit"`
	Content    statementContentXML `xml:"pkp:content"`
	License    []termXML           `xml:"pkp:license>pkp:term"`
	Package    *packageXML         `xml:"pkp:package,omitempty"`
	Errors     []string            `xml:"pkp:errors>pkp:error"`
}

type categoryXML struct {
	Scheme      string `xml:"scheme,attr"`
	Term        string `xml:"term,attr"`
	Label       string `xml:"label,attr"`
	Description string `xml:",chardata"`
}

type originalDepositXML struct {
	Href        string `xml:"href,attr"`
	DepositedOn string `xml:"sword:depositedOn"`
	DepositedBy string `xml:"sword:depositedBy"`
}

type statementContentXML struct {
	DepositUUID     string `xml:"deposit_uuid,attr"`
	Action          string `xml:"action,attr"`
	Volume          int    `xml:"volume,attr"`
	Issue           int    `xml:"issue,attr"`
	PubDate         string `xml:"pubdate,attr,omitempty"`
	ChecksumType    string `xml:"checksumType,attr"`
	ChecksumValue   string `xml:"checksumValue,attr"`
	Size            int64  `xml:"size,attr"`
	HarvestAttempts int    `xml:"harvestAttempts,attr"`
	URL             string `xml:",chardata"`
}

type packageXML struct {
	Size          string `xml:"size,attr,omitempty"`
	ChecksumType  string `xml:"checksumType,attr,omitempty"`
	ChecksumValue string `xml:"checksumValue,attr,omitempty"`
	DepositDate   string `xml:"depositDate,attr,omitempty"`
	Receipt       string `xml:",chardata"`
}

func renderStatement(st *services.Statement, originalHref string) ([]byte, error) {
	out := statementXML{
		XmlnsAtom:  services.NSAtom,
		XmlnsSword: services.NSSword,
		XmlnsPkp:   services.NSPkp,
		Categories: []categoryXML{{
			Scheme:      swordStateScheme,
			Term:        st.State,
			Label:       "State",
			Description: st.StateDescription,
		}},
		Original: originalDepositXML{
			Href:        originalHref,
			DepositedOn: formatTime(st.Received),
			DepositedBy: st.JournalTitle,
		},
		Content: statementContentXML{
			DepositUUID:     st.DepositUUID,
			Action:          st.Action,
			Volume:          st.Volume,
			Issue:           st.Issue,
			ChecksumType:    st.ChecksumType,
			ChecksumValue:   st.ChecksumValue,
			Size:            st.Size,
			HarvestAttempts: st.HarvestAttempts,
			URL:             st.URL,
		},
		Errors: st.ErrorLog,
	}
	if st.PubDate != nil {
		out.Content.PubDate = st.PubDate.Format("2006-01-02")
	}
	if st.PlnState != "" {
		out.Categories = append(out.Categories, categoryXML{
			Scheme: plnStateScheme,
			Term:   st.PlnState,
			Label:  "PLN State",
		})
	}

	keys := make([]string, 0, len(st.License))
	for k := range st.License {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out.License = append(out.License, termXML{XMLName: xml.Name{Local: "pkp:" + k}, Content: st.License[k]})
	}

	if st.PackageSize != nil || st.PackageChecksumValue != "" || st.DepositReceipt != "" {
		pkg := &packageXML{
			ChecksumType:  st.PackageChecksumType,
			ChecksumValue: st.PackageChecksumValue,
			Receipt:       st.DepositReceipt,
		}
		if st.PackageSize != nil {
			pkg.Size = strconv.FormatInt(*st.PackageSize, 10)
		}
		if st.DepositDate != nil {
			pkg.DepositDate = st.DepositDate.Format("2006-01-02")
		}
		out.Package = pkg
	}
	return marshalXML(out)
}

type swordErrorXML struct {
	XMLName    xml.Name `xml:"sword:error"`
	XmlnsSword string   `xml:"xmlns:sword,attr"`
	XmlnsAtom  string   `xml:"xmlns:atom,attr"`
	Href       string   `xml:"href,attr"`
	Title      string   `xml:"atom:title"`
	Summary    string   `xml:"atom:summary"`
}

func renderSwordError(errorType, message string) ([]byte, error) {
	return marshalXML(swordErrorXML{
		XmlnsSword: services.NSSword,
		XmlnsAtom:  services.NSAtom,
		Href:       swordErrorPrefix + errorType,
		Title:      "ERROR",
		Summary:    message,
	})
}

func marshalXML(v interface{}) ([]byte, error) {
	body, err := xml.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), body...), nil
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
