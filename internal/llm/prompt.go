package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/qwestard/codassistant/internal/catalog"
	"github.com/qwestard/codassistant/internal/models"
)

func systemInstruction(products []catalog.Product) string {
	var sb strings.Builder
	sb.WriteString(`You are a professional WhatsApp COD (Cash On Delivery) Chatbot for an e-commerce store.
Your goal is to handle customer inquiries and collect order information.
You support Arabic, Darija, and English.

`)
	if len(products) == 1 {
		sb.WriteString("Available Product: ")
	} else {
		sb.WriteString("Available Products:\n")
	}
	for _, p := range products {
		sb.WriteString(fmt.Sprintf("%q - Price: $%s\n", p.Name, p.Price.StringFixed(2)))
	}
	sb.WriteString(`
Workflow:
1. Greeting: Welcome the user and ask how you can help.
2. Order Flow: If they want to buy, collect: Name, Address, and Phone Number.
3. Confirmation: After collecting all data, ask them to confirm the order.

Do not ask again for information that is already present in the current order data.

Your response MUST be in JSON format.
Include:
- intent: The detected user intent.
- message: The natural language reply to the user (in the user's language).
- extractedData: Any order info (customerName, address, phone) found in the current message.
- nextStep: Suggest the next step in the conversation flow.
`)
	return sb.String()
}

func buildPrompt(utterance string, state models.ConversationState) (string, error) {
	tempOrder, err := json.Marshal(state.TempOrder)
	if err != nil {
		return "", fmt.Errorf("marshal temp order: %w", err)
	}
	return fmt.Sprintf(`Context: User is at step %q.
Current Temp Order Data: %s.
User Message: %q`, state.CurrentStep, tempOrder, utterance), nil
}
