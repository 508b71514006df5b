package service_test

import (
	"testing"

	"github.com/yeisme/exambridge/pkg/internal/service"
)

// TestParseScanName 文件名解析：标准命名、宽松回退与拒绝.
func TestParseScanName(t *testing.T) {
	cases := []struct {
		name    string
		owner   string
		subject string
		wantErr bool
	}{
		{"202412030156_MATH101.pdf", "202412030156", "MATH101", false},
		{"202412030156_PHYS202.PDF", "202412030156", "PHYS202", false},
		{"202412030156_CHEM110.jpeg", "202412030156", "CHEM110", false},
		// 宽松回退：分隔符与小写科目
		{"202412030156 math101.pdf", "202412030156", "MATH101", false},
		{"202412030156-phys202.png", "202412030156", "PHYS202", false},
		{"scan_202412030156_MATH101_final.jpg", "202412030156", "MATH101", false},
		// 带路径
		{"uploads/202412030156_MATH101.pdf", "202412030156", "MATH101", false},
		// 拒绝
		{"notes.pdf", "", "", true},
		{"12345_MATH101.pdf", "", "", true},
		{"202412030156_MATH101.docx", "", "", true},
		{"202412030156.pdf", "", "", true},
	}

	for _, c := range cases {
		owner, subject, err := service.ParseScanName(c.name)

		if c.wantErr {
			if err == nil {
				t.Errorf("ParseScanName(%q) expected error, got %s/%s", c.name, owner, subject)
			}

			if err != nil && !service.IsValidation(err) {
				t.Errorf("ParseScanName(%q) expected ValidationError, got %T", c.name, err)
			}

			continue
		}

		if err != nil {
			t.Errorf("ParseScanName(%q) unexpected error: %v", c.name, err)

			continue
		}

		if owner != c.owner || subject != c.subject {
			t.Errorf("ParseScanName(%q) = %s/%s, want %s/%s", c.name, owner, subject, c.owner, c.subject)
		}
	}
}

// TestSanitizeFileName 收敛到安全字符集并剥离路径.
func TestSanitizeFileName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"202412030156_MATH101.pdf", "202412030156_MATH101.pdf"},
		{"../../etc/passwd", "passwd"},
		{"exam scan (final).pdf", "exam_scan__final_.pdf"},
		{"考试_MATH101.pdf", "__MATH101.pdf"},
	}

	for _, c := range cases {
		if got := service.SanitizeFileName(c.in); got != c.want {
			t.Errorf("SanitizeFileName(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
