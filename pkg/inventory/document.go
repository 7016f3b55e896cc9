package inventory

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Document is the stored inventory, as read from YAML or BSON.
// Lists keep the source order in both encodings.
type Document struct {
	Defaults DefaultsDoc `yaml:"defaults" bson:"defaults" json:"defaults"`
	Groups   []GroupDoc  `yaml:"groups" bson:"groups" json:"groups" validate:"dive"`
	Hosts    []HostDoc   `yaml:"hosts" bson:"hosts" json:"hosts" validate:"dive"`
}

// ConnDoc holds connection fields shared by hosts, groups and defaults.
type ConnDoc struct {
	Hostname string `yaml:"hostname,omitempty" bson:"hostname,omitempty" json:"hostname,omitempty" validate:"omitempty,hostname_rfc1123|ip"`
	Port     int    `yaml:"port,omitempty" bson:"port,omitempty" json:"port,omitempty" validate:"omitempty,min=1,max=65535"`
	Username string `yaml:"username,omitempty" bson:"username,omitempty" json:"username,omitempty"`
	Password string `yaml:"password,omitempty" bson:"password,omitempty" json:"-"`
	KeyPath  string `yaml:"key_path,omitempty" bson:"key_path,omitempty" json:"key_path,omitempty"`
	Driver   string `yaml:"driver,omitempty" bson:"driver,omitempty" json:"driver,omitempty" validate:"omitempty,oneof=ssh telnet"`
	Timeout  string `yaml:"timeout,omitempty" bson:"timeout,omitempty" json:"timeout,omitempty" validate:"omitempty,duration"`
}

type DefaultsDoc struct {
	Platform    string `yaml:"platform,omitempty" bson:"platform,omitempty" json:"platform,omitempty"`
	Concurrency int    `yaml:"concurrency,omitempty" bson:"concurrency,omitempty" json:"concurrency,omitempty" validate:"gte=0"`
	ConnDoc     `yaml:",inline" bson:",inline"`
}

type GroupDoc struct {
	Name     string   `yaml:"name" bson:"name" json:"name" validate:"required,invname"`
	Platform string   `yaml:"platform,omitempty" bson:"platform,omitempty" json:"platform,omitempty"`
	Members  []string `yaml:"members,omitempty" bson:"members,omitempty" json:"members,omitempty"`
	ConnDoc  `yaml:",inline" bson:",inline"`
}

type HostDoc struct {
	Name     string            `yaml:"name" bson:"name" json:"name" validate:"required,invname"`
	Platform string            `yaml:"platform,omitempty" bson:"platform,omitempty" json:"platform,omitempty"`
	Groups   []string          `yaml:"groups,omitempty" bson:"groups,omitempty" json:"groups,omitempty"`
	Data     map[string]string `yaml:"data,omitempty" bson:"data,omitempty" json:"data,omitempty"`
	ConnDoc  `yaml:",inline" bson:",inline"`
}

var (
	validate   *validator.Validate
	nameRegexp = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:-]*$`)
)

func init() {
	validate = validator.New()

	_ = validate.RegisterValidation("duration", validateDuration)
	_ = validate.RegisterValidation("invname", validateName)
}

func validateDuration(fl validator.FieldLevel) bool {
	d, err := time.ParseDuration(fl.Field().String())
	return err == nil && d >= 0
}

func validateName(fl validator.FieldLevel) bool {
	return nameRegexp.MatchString(fl.Field().String())
}

// Validate checks field-level rules of the document. Cross-references are
// checked when the snapshot is built.
func (d *Document) Validate() error {
	if err := validate.Struct(d); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q rule (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid inventory: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid inventory: %w", err)
	}
	return nil
}
