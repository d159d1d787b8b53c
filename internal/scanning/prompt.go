package scanning

// extractionPrompt is shared by every model provider.
const extractionPrompt = `You are reading a receipt or invoice. Transcribe it and extract its fields.

Return ONLY one JSON object with exactly these keys:
{
  "vendor_name": "merchant name as printed at the top, or null",
  "invoice_number": "invoice, bill or receipt number, or null",
  "purchase_date": "date exactly as printed, or null",
  "purchase_time": "time exactly as printed, or null",
  "currency": "ISO 4217 code such as USD or INR, or the printed symbol, or null",
  "payment_method": "CASH, CARD, UPI, NET BANKING, WALLET, or null",
  "subtotal": number or null,
  "tax_amount": number or null,
  "total_amount": number or null,
  "line_items": [
    {"description": "item text", "quantity": number or null, "unit_price": number or null, "total_price": number or null}
  ],
  "ocr_text": "the full text of the document, line by line, separated by \n"
}

Rules:
- Copy dates and times as printed; do not reformat or guess them.
- Amounts are plain numbers without currency symbols or thousands separators.
- Use null for anything you cannot read. Never use 0 or "" to mean missing.
- Do not add text before or after the JSON and do not use markdown code blocks.`
