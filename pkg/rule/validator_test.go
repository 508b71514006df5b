package rule_test

import (
	"testing"

	"github.com/go-playground/validator/v10"

	"github.com/yeisme/exambridge/pkg/rule"
)

// submitRequest 用于测试 ValidateStruct.
type submitRequest struct {
	OwnerIdentity string `rule:"required,len=12,numeric"`
	SubjectCode   string `rule:"required,min=2,max=10"`
}

// TestEngine 测试 Engine 函数返回非 nil 实例.
func TestEngine(t *testing.T) {
	engine := rule.Engine()
	if engine == nil {
		t.Error("Engine() returned nil")
	}
}

// TestValidateStruct 测试 ValidateStruct 对有效和无效结构体的验证.
func TestValidateStruct(t *testing.T) {
	// 有效结构体
	valid := submitRequest{OwnerIdentity: "202412030156", SubjectCode: "MATH101"}

	err := rule.ValidateStruct(valid)
	if err != nil {
		t.Errorf("Expected no error for valid struct, got %v", err)
	}

	// 无效结构体：学号位数不足
	invalid1 := submitRequest{OwnerIdentity: "20241203", SubjectCode: "MATH101"}

	err = rule.ValidateStruct(invalid1)
	if err == nil {
		t.Error("Expected error for short owner identity, got nil")
	}

	// 无效结构体：缺少科目代码
	invalid2 := submitRequest{OwnerIdentity: "202412030156", SubjectCode: ""}

	err = rule.ValidateStruct(invalid2)
	if err == nil {
		t.Error("Expected error for missing subject code, got nil")
	}
}

// TestValidateVar 测试 ValidateVar 对变量的验证.
func TestValidateVar(t *testing.T) {
	// 有效 URL
	err := rule.ValidateVar("http://moodle.example.edu", "required,url")
	if err != nil {
		t.Errorf("Expected no error for valid url, got %v", err)
	}

	// 无效 URL
	err = rule.ValidateVar("not a url", "required,url")
	if err == nil {
		t.Error("Expected error for invalid url, got nil")
	}

	// 有效数字
	err = rule.ValidateVar(50, "min=1,max=1000")
	if err != nil {
		t.Errorf("Expected no error for valid number, got %v", err)
	}

	// 无效数字
	err = rule.ValidateVar(0, "min=1,max=1000")
	if err == nil {
		t.Error("Expected error for invalid number, got nil")
	}
}

// TestRegisterValidation 测试注册自定义验证.
func TestRegisterValidation(t *testing.T) {
	// 注册自定义验证：科目代码须为大写字母或数字
	err := rule.RegisterValidation("subject_code", func(fl validator.FieldLevel) bool {
		str, ok := fl.Field().Interface().(string)
		if !ok {
			return false
		}

		for _, r := range str {
			if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
				return false
			}
		}

		return len(str) > 0
	})
	if err != nil {
		t.Fatalf("Failed to register validation: %v", err)
	}

	err = rule.ValidateVar("CS1010", "subject_code")
	if err != nil {
		t.Errorf("Expected no error for valid subject code, got %v", err)
	}

	err = rule.ValidateVar("cs-1010", "subject_code")
	if err == nil {
		t.Error("Expected error for lowercase subject code, got nil")
	}
}

// TestRegisterAlias 测试注册别名.
func TestRegisterAlias(t *testing.T) {
	rule.RegisterAlias("owner_id", "required,len=12,numeric")

	err := rule.ValidateVar("202412030156", "owner_id")
	if err != nil {
		t.Errorf("Expected no error for valid owner id with alias, got %v", err)
	}

	err = rule.ValidateVar("abc", "owner_id")
	if err == nil {
		t.Error("Expected error for invalid owner id with alias, got nil")
	}
}
