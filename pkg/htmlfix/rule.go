package htmlfix

import "strings"

// FeedLayoutRuleName 内置规则名称
const FeedLayoutRuleName = "feed-layout"

// 修复前的片段：modalTriggerPoint 落在容器外，popup 后多出两个 </div>
const feedLayoutOld = `                    </div>
                 </div>


                 
      <div id="modalTriggerPoint"></div>
    </div>

    <div id="justinePopup" class="justine-popup hidden">
      <div class="popup-box">
        <p class="popup-text">
          "Everyone is posting something…  
          Maybe I should too."
        </p>
        <button id="popupPostBtn">Post something</button>
           </div>
             </div>

         </div>
       </div>
               <div class="bottom-navigation">`

const feedLayoutNew = `                    </div>
                    <div id="modalTriggerPoint"></div>
                 </div>

                 <div id="justinePopup" class="justine-popup hidden">
                   <div class="popup-box">
                     <p class="popup-text">
                       "Everyone is posting something…  
                       Maybe I should too."
                     </p>
                     <button id="popupPostBtn">Post something</button>
                   </div>
                 </div>

                 <div class="bottom-navigation">`

// Rule 一条字面量替换规则
type Rule struct {
	Name string `yaml:"name" json:"name" validate:"required"`
	Old  string `yaml:"old" json:"old" validate:"required,nefield=New"`
	New  string `yaml:"new" json:"new"`
}

// FeedLayoutRule 返回 feed.html 布局修复规则
func FeedLayoutRule() Rule {
	return Rule{
		Name: FeedLayoutRuleName,
		Old:  feedLayoutOld,
		New:  feedLayoutNew,
	}
}

// DefaultRules 默认规则集
func DefaultRules() []Rule {
	return []Rule{FeedLayoutRule()}
}

// Apply 替换 content 中所有 rule.Old，返回新内容和替换次数
// 规则分别以 CRLF 和 LF 两种换行形式匹配，替换结果沿用被匹配片段的换行
func Apply(content string, rule Rule) (string, int) {
	if rule.Old == "" {
		return content, 0
	}

	total := 0
	for _, form := range lineEndingForms(rule) {
		n := strings.Count(content, form.Old)
		if n == 0 {
			continue
		}
		content = strings.ReplaceAll(content, form.Old, form.New)
		total += n
	}
	return content, total
}

// lineEndingForms CRLF 形式在前；不含换行的规则只有一种形式
func lineEndingForms(rule Rule) []Rule {
	crlf := Rule{Name: rule.Name, Old: toCRLF(rule.Old), New: toCRLF(rule.New)}
	lf := Rule{Name: rule.Name, Old: toLF(rule.Old), New: toLF(rule.New)}
	if crlf.Old == lf.Old {
		return []Rule{lf}
	}
	return []Rule{crlf, lf}
}

func toLF(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}

func toCRLF(s string) string {
	return strings.ReplaceAll(toLF(s), "\n", "\r\n")
}
