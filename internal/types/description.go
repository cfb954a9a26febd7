package types

import (
	"encoding/xml"
	"fmt"
	"strconv"
)

// XDF: full device description, one per sub-node.

type DeviceDescription struct {
	XMLName    xml.Name          `xml:"IngeniaDictionary" json:"-"`
	Header     DescriptionHeader `xml:"Header" json:"header"`
	Body       DescriptionBody   `xml:"Body" json:"body"`
	DriveImage *DriveImage       `xml:"DriveImage" json:"drive_image,omitempty"`
}

type DescriptionHeader struct {
	Version         string `xml:"Version" json:"version"`
	DefaultLanguage string `xml:"DefaultLanguage" json:"default_language"`
}

type DescriptionBody struct {
	Device DescriptionDevice `xml:"Device" json:"device"`
	Errors []DeviceError     `xml:"Errors>Error" json:"errors,omitempty"`
}

type DescriptionDevice struct {
	Family          string                `xml:"family,attr" json:"family"`
	FirmwareVersion string                `xml:"firmwareVersion,attr" json:"firmware_version"`
	ProductCode     string                `xml:"ProductCode,attr" json:"product_code"`
	RevisionNumber  string                `xml:"RevisionNumber,attr" json:"revision_number"`
	Interface       string                `xml:"Interface,attr" json:"interface"`
	Name            string                `xml:"name,attr" json:"name"`
	Categories      []Category            `xml:"Categories>Category" json:"categories,omitempty"`
	Registers       []DescriptionRegister `xml:"Registers>Register" json:"registers"`
}

type Category struct {
	ID     string  `xml:"id,attr" json:"id"`
	Labels []Label `xml:"Labels>Label" json:"labels,omitempty"`
}

type Label struct {
	Lang  string `xml:"lang,attr" json:"lang"`
	Value string `xml:",chardata" json:"value"`
}

type DescriptionRegister struct {
	Access      string  `xml:"access,attr" json:"access"`
	AddressType string  `xml:"address_type,attr" json:"address_type"`
	Address     string  `xml:"address,attr" json:"address"`
	DataType    string  `xml:"dtype,attr" json:"dtype"`
	ID          string  `xml:"id,attr" json:"id"`
	Units       string  `xml:"units,attr" json:"units"`
	Subnode     string  `xml:"subnode,attr" json:"subnode"`
	Cyclic      string  `xml:"cyclic,attr" json:"cyclic"`
	Description string  `xml:"desc,attr" json:"desc"`
	CategoryID  string  `xml:"cat_id,attr" json:"cat_id"`
	Labels      []Label `xml:"Labels>Label" json:"labels,omitempty"`
}

type DeviceError struct {
	ID             string  `xml:"id,attr" json:"id"`
	AffectedModule string  `xml:"affected_module,attr" json:"affected_module"`
	ErrorType      string  `xml:"error_type,attr" json:"error_type"`
	Labels         []Label `xml:"Labels>Label" json:"labels,omitempty"`
}

type DriveImage struct {
	Encoding string `xml:"encoding,attr" json:"encoding"`
	Data     string `xml:",chardata" json:"-"`
}

// XCF: stored configuration, the source of register default values.

type DeviceConfiguration struct {
	XMLName xml.Name          `xml:"IngeniaDictionary" json:"-"`
	Header  DescriptionHeader `xml:"Header" json:"header"`
	Body    ConfigurationBody `xml:"Body" json:"body"`
}

type ConfigurationBody struct {
	Device ConfigurationDevice `xml:"Device" json:"device"`
}

type ConfigurationDevice struct {
	Interface       string                  `xml:"Interface,attr" json:"interface"`
	PartNumber      string                  `xml:"PartNumber,attr" json:"part_number"`
	ProductCode     string                  `xml:"ProductCode,attr" json:"product_code"`
	RevisionNumber  string                  `xml:"RevisionNumber,attr" json:"revision_number"`
	FirmwareVersion string                  `xml:"firmwareVersion,attr" json:"firmware_version"`
	Registers       []ConfigurationRegister `xml:"Registers>Register" json:"registers"`
}

type ConfigurationRegister struct {
	Access   string `xml:"access,attr" json:"access"`
	DataType string `xml:"dtype,attr" json:"dtype"`
	ID       string `xml:"id,attr" json:"id"`
	Storage  string `xml:"storage,attr" json:"storage"`
	Subnode  string `xml:"subnode,attr" json:"subnode"`
}

// Identity parses the device fields of an XDF document.
func (d *DeviceDescription) Identity() (DeviceIdentity, error) {
	dev := d.Body.Device
	id := DeviceIdentity{
		FirmwareVersion: dev.FirmwareVersion,
		Interface:       dev.Interface,
		Family:          dev.Family,
		Name:            dev.Name,
	}
	var err error
	if id.ProductCode, err = parseUint32("ProductCode", dev.ProductCode); err != nil {
		return DeviceIdentity{}, err
	}
	if id.RevisionNumber, err = parseUint32("RevisionNumber", dev.RevisionNumber); err != nil {
		return DeviceIdentity{}, err
	}
	return id, nil
}

// Identity parses the device fields of an XCF document. Nothing is served
// from these fields, so a field that does not parse is left at zero and
// reported in the returned errors while the identity stays usable.
func (c *DeviceConfiguration) Identity() (DeviceIdentity, []error) {
	dev := c.Body.Device
	id := DeviceIdentity{
		FirmwareVersion: dev.FirmwareVersion,
		PartNumber:      dev.PartNumber,
		Interface:       dev.Interface,
	}
	var errs []error
	var err error
	if id.ProductCode, err = parseUint32("ProductCode", dev.ProductCode); err != nil {
		errs = append(errs, err)
	}
	if id.RevisionNumber, err = parseUint32("RevisionNumber", dev.RevisionNumber); err != nil {
		errs = append(errs, err)
	}
	return id, errs
}

func parseUint32(field, text string) (uint32, error) {
	n, err := strconv.ParseUint(text, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, text, err)
	}
	return uint32(n), nil
}
