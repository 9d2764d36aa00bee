package rules

import (
	"io"
	"reflect"
	"strings"

	"github.com/go-errors/errors"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/tatrishvili/sae302/pkg/htmlfix"
)

// ErrInvalidRules 规则文件校验失败
var ErrInvalidRules = errors.Errorf("invalid rules")

// File 规则文件格式
// replace 为 true 时只使用文件中的规则，否则追加在内置规则之后
type File struct {
	Replace bool           `yaml:"replace"`
	Rules   []htmlfix.Rule `yaml:"rules" validate:"unique=Name,dive"`
}

type checker struct {
	validate *validator.Validate
	trans    ut.Translator
}

func newChecker() *checker {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	locale := en.New()
	uni := ut.New(locale, locale)
	trans, _ := uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(validate, trans)

	return &checker{validate: validate, trans: trans}
}

func (c *checker) check(rules []htmlfix.Rule) error {
	err := c.validate.Struct(File{Rules: rules})
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return errors.WrapPrefix(err, "validate rules", 0)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fe.Namespace()+": "+fe.Translate(c.trans))
	}
	return errors.WrapPrefix(ErrInvalidRules, strings.Join(msgs, "; "), 0)
}

// Validate 校验规则集：名称必填且唯一，old 必填且不能与 new 相同
func Validate(rules []htmlfix.Rule) error {
	return newChecker().check(rules)
}

// Load 读取 YAML 规则文件
func Load(fs afero.Fs, path string) (*File, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.WrapPrefix(err, "read rules "+path, 0)
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.WrapPrefix(err, "parse rules "+path, 0)
	}
	return &file, nil
}

// Resolve 返回最终生效的规则集，path 为空时使用内置规则
func Resolve(fs afero.Fs, path string) ([]htmlfix.Rule, error) {
	if path == "" {
		return htmlfix.DefaultRules(), nil
	}

	file, err := Load(fs, path)
	if err != nil {
		return nil, err
	}

	rules := file.Rules
	if !file.Replace {
		rules = append(htmlfix.DefaultRules(), file.Rules...)
	}
	if err := Validate(rules); err != nil {
		return nil, err
	}
	return rules, nil
}

// Dump 以规则文件格式输出规则集
func Dump(w io.Writer, rules []htmlfix.Rule) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(File{Replace: true, Rules: rules}); err != nil {
		return errors.WrapPrefix(err, "encode rules", 0)
	}
	return enc.Close()
}
